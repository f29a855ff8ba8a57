package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// FakeElement is the state of one selector on a FakePage.
type FakeElement struct {
	Visible    bool
	Checked    bool
	Disabled   bool
	Text       string
	HTML       string
	Value      string
	Attributes map[string]string
	Box        *schemas.ElementGeometry
}

// KeyPress records one PressKey call.
type KeyPress struct {
	Key       string
	Modifiers schemas.KeyModifier
}

// FakePage is an in-memory schemas.Driver. Elements are keyed by the exact
// selector string. Hooks run without the page lock held so they may mutate
// the page.
type FakePage struct {
	mu       sync.Mutex
	order    []string
	elements map[string]*FakeElement
	url      string
	slots    map[string]int

	clickHooks map[string][]func(p *FakePage)
	onInspect  func(p *FakePage, selector string)
	onNavigate func(p *FakePage, url string)
	onReload   func(p *FakePage)
	evalFunc   func(script string) (interface{}, error)

	clicks      []string
	mouse       []schemas.MouseEventData
	keys        []KeyPress
	typed       strings.Builder
	files       map[string][]string
	navigations []string
	scripts     []string
	injected    []string
	inspections int
	reloads     int
	closeCount  int
}

// NewFakePage returns an empty page at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{
		elements:   make(map[string]*FakeElement),
		clickHooks: make(map[string][]func(p *FakePage)),
		files:      make(map[string][]string),
		slots:      make(map[string]int),
		url:        "about:blank",
	}
}

// -- Page setup --

// Set adds or replaces an element. A visible element without a box gets a default one.
func (p *FakePage) Set(selector string, el FakeElement) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.elements[selector]; !ok {
		p.order = append(p.order, selector)
	}
	if el.Visible && el.Box == nil {
		el.Box = p.defaultBox(selector)
	}
	if el.Attributes == nil {
		el.Attributes = make(map[string]string)
	}
	cp := el
	p.elements[selector] = &cp
	return p
}

// Show makes selector present and visible, creating it when needed.
func (p *FakePage) Show(selector string) *FakePage {
	if !p.Has(selector) {
		return p.Set(selector, FakeElement{Visible: true})
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el := p.elements[selector]
	el.Visible = true
	if el.Box == nil {
		el.Box = p.defaultBox(selector)
	}
	return p
}

// Hide keeps selector attached but invisible.
func (p *FakePage) Hide(selector string) *FakePage {
	p.Update(selector, func(el *FakeElement) { el.Visible = false })
	return p
}

// Remove detaches selector.
func (p *FakePage) Remove(selector string) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, selector)
	for i, s := range p.order {
		if s == selector {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return p
}

// Update mutates an existing element in place. Missing selectors are ignored.
func (p *FakePage) Update(selector string, fn func(el *FakeElement)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[selector]; ok {
		fn(el)
	}
}

// Has reports whether selector is attached.
func (p *FakePage) Has(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.elements[selector]
	return ok
}

// SetURL sets the current location without recording a navigation.
func (p *FakePage) SetURL(url string) *FakePage {
	p.mu.Lock()
	p.url = url
	p.mu.Unlock()
	return p
}

// OnClick registers a hook fired when selector is clicked, either through
// Click or by a mouse press landing inside its box.
func (p *FakePage) OnClick(selector string, fn func(p *FakePage)) *FakePage {
	p.mu.Lock()
	p.clickHooks[selector] = append(p.clickHooks[selector], fn)
	p.mu.Unlock()
	return p
}

// OnInspect registers a hook fired before every Inspect.
func (p *FakePage) OnInspect(fn func(p *FakePage, selector string)) *FakePage {
	p.mu.Lock()
	p.onInspect = fn
	p.mu.Unlock()
	return p
}

// OnNavigate registers a hook fired after every navigation.
func (p *FakePage) OnNavigate(fn func(p *FakePage, url string)) *FakePage {
	p.mu.Lock()
	p.onNavigate = fn
	p.mu.Unlock()
	return p
}

// OnReload registers a hook fired after every reload.
func (p *FakePage) OnReload(fn func(p *FakePage)) *FakePage {
	p.mu.Lock()
	p.onReload = fn
	p.mu.Unlock()
	return p
}

// OnEvaluate sets the function answering Evaluate. Its result is JSON
// round-tripped into the caller's result pointer.
func (p *FakePage) OnEvaluate(fn func(script string) (interface{}, error)) *FakePage {
	p.mu.Lock()
	p.evalFunc = fn
	p.mu.Unlock()
	return p
}

// -- schemas.Driver --

func (p *FakePage) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.url = url
	p.navigations = append(p.navigations, url)
	hook := p.onNavigate
	p.mu.Unlock()
	if hook != nil {
		hook(p, url)
	}
	return nil
}

func (p *FakePage) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.reloads++
	hook := p.onReload
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) CurrentURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *FakePage) Inspect(ctx context.Context, selector string) (*schemas.ElementInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.inspections++
	hook := p.onInspect
	p.mu.Unlock()
	if hook != nil {
		hook(p, selector)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return &schemas.ElementInfo{}, nil
	}
	info := &schemas.ElementInfo{
		Exists:     true,
		Visible:    el.Visible,
		Checked:    el.Checked,
		Disabled:   el.Disabled,
		Text:       el.Text,
		Attributes: make(map[string]string, len(el.Attributes)),
	}
	for k, v := range el.Attributes {
		info.Attributes[k] = v
	}
	if el.Visible && el.Box != nil {
		box := *el.Box
		info.Box = &box
	}
	return info, nil
}

func (p *FakePage) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	el, err := p.lookup(ctx, selector)
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attributes[name]
	return v, ok, nil
}

func (p *FakePage) Text(ctx context.Context, selector string) (string, error) {
	el, err := p.lookup(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.Text, nil
}

func (p *FakePage) OuterHTML(ctx context.Context, selector string) (string, error) {
	el, err := p.lookup(ctx, selector)
	if err != nil {
		return "", err
	}
	return el.HTML, nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	el, err := p.lookup(ctx, selector)
	if err != nil {
		return err
	}
	if !el.Visible {
		return fmt.Errorf("fake: %w: %q is hidden", schemas.ErrElementNotInteractable, selector)
	}
	p.fireClick(selector)
	return nil
}

func (p *FakePage) SetValue(ctx context.Context, selector, value string) error {
	if _, err := p.lookup(ctx, selector); err != nil {
		return err
	}
	p.Update(selector, func(el *FakeElement) { el.Value = value })
	return nil
}

func (p *FakePage) SetFiles(ctx context.Context, selector string, files []string) error {
	if _, err := p.lookup(ctx, selector); err != nil {
		return err
	}
	p.mu.Lock()
	p.files[selector] = append([]string(nil), files...)
	p.mu.Unlock()
	return nil
}

func (p *FakePage) DispatchMouse(ctx context.Context, ev schemas.MouseEventData) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.mouse = append(p.mouse, ev)
	var hit string
	if ev.Type == schemas.MousePress {
		for _, sel := range p.order {
			el := p.elements[sel]
			if el.Visible && el.Box != nil && contains(el.Box, ev.X, ev.Y) {
				hit = sel
				break
			}
		}
	}
	p.mu.Unlock()
	if hit != "" {
		p.fireClick(hit)
	}
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, key string, modifiers schemas.KeyModifier) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, KeyPress{Key: key, Modifiers: modifiers})
	return nil
}

func (p *FakePage) TypeText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.typed.WriteString(text)
	return nil
}

func (p *FakePage) Evaluate(ctx context.Context, script string, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.scripts = append(p.scripts, script)
	fn := p.evalFunc
	p.mu.Unlock()
	if fn == nil {
		return nil
	}
	v, err := fn(script)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (p *FakePage) InjectScript(ctx context.Context, script string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.injected = append(p.injected, script)
	return nil
}

func (p *FakePage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeCount++
	return nil
}

// -- Recorded interactions --

func (p *FakePage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// ClickCount counts clicks landing on selector.
func (p *FakePage) ClickCount(selector string) int {
	n := 0
	for _, c := range p.Clicks() {
		if c == selector {
			n++
		}
	}
	return n
}

func (p *FakePage) MouseEvents() []schemas.MouseEventData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]schemas.MouseEventData(nil), p.mouse...)
}

func (p *FakePage) KeyPresses() []KeyPress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]KeyPress(nil), p.keys...)
}

func (p *FakePage) TypedText() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.typed.String()
}

func (p *FakePage) Files(selector string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files[selector]...)
}

func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if el, ok := p.elements[selector]; ok {
		return el.Value
	}
	return ""
}

func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

func (p *FakePage) Scripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.scripts...)
}

func (p *FakePage) InjectedScripts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.injected...)
}

func (p *FakePage) Inspections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inspections
}

func (p *FakePage) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *FakePage) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCount
}

// -- helpers --

func (p *FakePage) lookup(ctx context.Context, selector string) (FakeElement, error) {
	if err := ctx.Err(); err != nil {
		return FakeElement{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.elements[selector]
	if !ok {
		return FakeElement{}, fmt.Errorf("fake: %w: no element matches %q", schemas.ErrElementNotInteractable, selector)
	}
	return *el, nil
}

func (p *FakePage) fireClick(selector string) {
	p.mu.Lock()
	p.clicks = append(p.clicks, selector)
	hooks := append([]func(*FakePage){}, p.clickHooks[selector]...)
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p)
	}
}

// defaultBox stacks elements vertically so mouse presses hit exactly one.
// A selector keeps its slot for the life of the page. Assumes the lock is held.
func (p *FakePage) defaultBox(selector string) *schemas.ElementGeometry {
	idx, ok := p.slots[selector]
	if !ok {
		idx = len(p.slots)
		p.slots[selector] = idx
	}
	return &schemas.ElementGeometry{X: 100, Y: 100 + float64(idx)*60, Width: 120, Height: 40}
}

func contains(box *schemas.ElementGeometry, x, y float64) bool {
	return x >= box.X && x <= box.X+box.Width && y >= box.Y && y <= box.Y+box.Height
}
