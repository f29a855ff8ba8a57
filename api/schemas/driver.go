package schemas

import (
	"context"
	"time"
)

// -- Browser Driver Boundary --
// Everything the automation engine needs from a concrete browser binding.
// Selectors are CSS by default; an "xpath=" prefix switches to XPath.

// XPathPrefix marks a selector as an XPath expression.
const XPathPrefix = "xpath="

// ElementState is the condition WaitFor blocks on.
type ElementState string

const (
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
)

// ElementGeometry is an element's bounding box in CSS pixels relative to the viewport.
type ElementGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the box.
func (g ElementGeometry) Center() (float64, float64) {
	return g.X + g.Width/2, g.Y + g.Height/2
}

// ElementInfo is a single-round-trip snapshot of the first element matching a selector.
type ElementInfo struct {
	Exists     bool              `json:"exists"`
	Visible    bool              `json:"visible"`
	Checked    bool              `json:"checked"`
	Disabled   bool              `json:"disabled"`
	Text       string            `json:"text"`
	Attributes map[string]string `json:"attributes"`
	Box        *ElementGeometry  `json:"box"`
}

// MouseEventType mirrors the CDP mouse event kinds we dispatch.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton identifies the button involved in a mouse event.
type MouseButton string

const (
	ButtonNone MouseButton = "none"
	ButtonLeft MouseButton = "left"
)

// MouseEventData describes one low-level pointer event.
type MouseEventData struct {
	Type       MouseEventType
	X          float64
	Y          float64
	Button     MouseButton
	ClickCount int
}

// KeyModifier is a bitfield of held modifier keys (CDP encoding).
type KeyModifier int

const (
	ModifierNone  KeyModifier = 0
	ModifierAlt   KeyModifier = 1
	ModifierCtrl  KeyModifier = 2
	ModifierMeta  KeyModifier = 4
	ModifierShift KeyModifier = 8
)

// Named keys understood by Driver.PressKey in addition to single characters.
const (
	KeyBackspace = "Backspace"
	KeyEnter     = "Enter"
	KeyArrowDown = "ArrowDown"
	KeyEscape    = "Escape"
)

// WaitUntil selects the load milestone Navigate waits for.
type WaitUntil string

const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// NavigateOptions tunes a navigation.
type NavigateOptions struct {
	WaitUntil WaitUntil
	Timeout   time.Duration
}

// Driver is the abstract browser capability set the engine depends on.
// Any binding satisfying it is substitutable; the shipped one is chromedp based.
type Driver interface {
	Navigate(ctx context.Context, url string, opts NavigateOptions) error
	Reload(ctx context.Context) error
	CurrentURL(ctx context.Context) (string, error)

	// Inspect never blocks waiting for the element; a missing element yields Exists=false.
	Inspect(ctx context.Context, selector string) (*ElementInfo, error)
	Attribute(ctx context.Context, selector, name string) (string, bool, error)
	Text(ctx context.Context, selector string) (string, error)
	OuterHTML(ctx context.Context, selector string) (string, error)

	Click(ctx context.Context, selector string) error
	SetValue(ctx context.Context, selector, value string) error
	SetFiles(ctx context.Context, selector string, files []string) error

	DispatchMouse(ctx context.Context, ev MouseEventData) error
	PressKey(ctx context.Context, key string, modifiers KeyModifier) error
	TypeText(ctx context.Context, text string) error

	Evaluate(ctx context.Context, script string, result interface{}) error
	InjectScript(ctx context.Context, script string) error

	Close(ctx context.Context) error
}

// WaitFor polls Inspect until the element reaches state or timeout elapses.
func WaitFor(ctx context.Context, d Driver, selector string, state ElementState, timeout time.Duration) error {
	const tick = 100 * time.Millisecond
	deadline := time.Now().Add(timeout)
	for {
		info, err := d.Inspect(ctx, selector)
		if err == nil && stateReached(info, state) {
			return nil
		}
		if time.Now().After(deadline) {
			if err != nil {
				return err
			}
			return ErrWaitTimeout{Selector: selector, State: state, Timeout: timeout}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(tick):
		}
	}
}

func stateReached(info *ElementInfo, state ElementState) bool {
	if info == nil {
		return state == StateDetached || state == StateHidden
	}
	switch state {
	case StateVisible:
		return info.Visible
	case StateHidden:
		return !info.Visible
	case StateAttached:
		return info.Exists
	case StateDetached:
		return !info.Exists
	}
	return false
}
