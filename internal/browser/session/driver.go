package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// DefaultActionTimeout bounds a single browser round trip when the caller set no deadline.
const DefaultActionTimeout = 30 * time.Second

// networkIdleQuiet is how long the resource count must hold still to count as idle.
const networkIdleQuiet = 500 * time.Millisecond

// inspectJS resolves a selector (CSS, or XPath behind the xpath= prefix)
// and snapshots the first match without waiting for it.
const inspectJS = `((sel) => {
  let el = null;
  if (sel.startsWith(%q)) {
    const r = document.evaluate(sel.slice(%d), document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null);
    el = r.singleNodeValue;
  } else {
    el = document.querySelector(sel);
  }
  if (!el) return { exists: false };
  const rect = el.getBoundingClientRect();
  const style = window.getComputedStyle(el);
  const visible = rect.width > 0 && rect.height > 0 &&
    style.visibility !== 'hidden' && style.display !== 'none' && style.opacity !== '0';
  const attributes = {};
  for (const a of el.attributes || []) attributes[a.name] = a.value;
  return {
    exists: true,
    visible: visible,
    checked: !!el.checked,
    disabled: !!el.disabled,
    text: (el.innerText || el.textContent || '').trim(),
    attributes: attributes,
    box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
    html: el.outerHTML,
  };
})(%s)`

// ChromeDriver implements schemas.Driver over a chromedp browser context.
type ChromeDriver struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	closeOnce sync.Once
}

var _ schemas.Driver = (*ChromeDriver)(nil)

func newChromeDriver(ctx context.Context, cancel context.CancelFunc, logger *zap.Logger) *ChromeDriver {
	return &ChromeDriver{ctx: ctx, cancel: cancel, logger: logger.Named("driver")}
}

// run executes actions on the page, bounded by both the browser lifetime and ctx.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(d.ctx, ctx)
	defer cancel()
	if _, ok := runCtx.Deadline(); !ok {
		var timeoutCancel context.CancelFunc
		runCtx, timeoutCancel = context.WithTimeout(runCtx, DefaultActionTimeout)
		defer timeoutCancel()
	}
	return chromedp.Run(runCtx, actions...)
}

func queryOpt(selector string) (string, chromedp.QueryOption) {
	if strings.HasPrefix(selector, schemas.XPathPrefix) {
		return strings.TrimPrefix(selector, schemas.XPathPrefix), chromedp.BySearch
	}
	return selector, chromedp.ByQuery
}

type snapshot struct {
	schemas.ElementInfo
	HTML string `json:"html"`
}

func (d *ChromeDriver) snapshot(ctx context.Context, selector string) (*snapshot, error) {
	arg, err := json.Marshal(selector)
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf(inspectJS, schemas.XPathPrefix, len(schemas.XPathPrefix), arg)
	var snap snapshot
	if err := d.run(ctx, chromedp.Evaluate(script, &snap)); err != nil {
		return nil, fmt.Errorf("inspecting %q: %w", selector, err)
	}
	return &snap, nil
}

func (d *ChromeDriver) mustExist(ctx context.Context, selector string) (*snapshot, error) {
	snap, err := d.snapshot(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !snap.Exists {
		return nil, fmt.Errorf("%w: %q not found", schemas.ErrElementNotInteractable, selector)
	}
	return snap, nil
}

// Navigate loads url and waits for the requested milestone.
func (d *ChromeDriver) Navigate(ctx context.Context, url string, opts schemas.NavigateOptions) error {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	switch opts.WaitUntil {
	case schemas.WaitDOMContentLoaded:
		err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			_, _, errText, err := page.Navigate(url).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("page load error %s", errText)
			}
			return nil
		}))
		if err != nil {
			return fmt.Errorf("navigating to %s: %w", url, err)
		}
		return d.waitReadyState(ctx, "interactive", "complete")
	case schemas.WaitNetworkIdle:
		if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigating to %s: %w", url, err)
		}
		return d.waitNetworkIdle(ctx)
	default:
		if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
			return fmt.Errorf("navigating to %s: %w", url, err)
		}
		return nil
	}
}

func (d *ChromeDriver) waitReadyState(ctx context.Context, states ...string) error {
	for {
		var state string
		if err := d.run(ctx, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
			return err
		}
		for _, s := range states {
			if state == s {
				return nil
			}
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// waitNetworkIdle waits until no new resource entries appear for networkIdleQuiet.
func (d *ChromeDriver) waitNetworkIdle(ctx context.Context) error {
	if err := d.waitReadyState(ctx, "complete"); err != nil {
		return err
	}
	last, stableSince := -1, time.Now()
	for {
		var count int
		if err := d.run(ctx, chromedp.Evaluate(`performance.getEntriesByType('resource').length`, &count)); err != nil {
			return err
		}
		if count != last {
			last, stableSince = count, time.Now()
		} else if time.Since(stableSince) >= networkIdleQuiet {
			return nil
		}
		if err := sleepCtx(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (d *ChromeDriver) Reload(ctx context.Context) error {
	return d.run(ctx, chromedp.Reload())
}

func (d *ChromeDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, chromedp.Location(&url))
	return url, err
}

func (d *ChromeDriver) Inspect(ctx context.Context, selector string) (*schemas.ElementInfo, error) {
	snap, err := d.snapshot(ctx, selector)
	if err != nil {
		return nil, err
	}
	return &snap.ElementInfo, nil
}

func (d *ChromeDriver) Attribute(ctx context.Context, selector, name string) (string, bool, error) {
	snap, err := d.mustExist(ctx, selector)
	if err != nil {
		return "", false, err
	}
	v, ok := snap.Attributes[name]
	return v, ok, nil
}

func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	snap, err := d.mustExist(ctx, selector)
	if err != nil {
		return "", err
	}
	return snap.Text, nil
}

func (d *ChromeDriver) OuterHTML(ctx context.Context, selector string) (string, error) {
	snap, err := d.mustExist(ctx, selector)
	if err != nil {
		return "", err
	}
	return snap.HTML, nil
}

// Click is the direct DOM click; humanised clicks go through DispatchMouse.
func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	sel, by := queryOpt(selector)
	if err := d.run(ctx, chromedp.Click(sel, by, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("%w: clicking %q: %v", schemas.ErrElementNotInteractable, selector, err)
	}
	return nil
}

func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	sel, by := queryOpt(selector)
	return d.run(ctx, chromedp.SetValue(sel, value, by))
}

func (d *ChromeDriver) SetFiles(ctx context.Context, selector string, files []string) error {
	sel, by := queryOpt(selector)
	if err := d.run(ctx, chromedp.SetUploadFiles(sel, files, by)); err != nil {
		return fmt.Errorf("setting files on %q: %w", selector, err)
	}
	return nil
}

func (d *ChromeDriver) DispatchMouse(ctx context.Context, ev schemas.MouseEventData) error {
	opts := []chromedp.MouseOption{chromedp.ButtonType(input.MouseButton(ev.Button))}
	if ev.ClickCount > 0 {
		opts = append(opts, chromedp.ClickCount(ev.ClickCount))
	}
	return d.run(ctx, chromedp.MouseEvent(input.MouseType(ev.Type), ev.X, ev.Y, opts...))
}

// namedKeys maps key names to chromedp's key runes.
var namedKeys = map[string]string{
	schemas.KeyBackspace: kb.Backspace,
	schemas.KeyEnter:     kb.Enter,
	schemas.KeyArrowDown: kb.ArrowDown,
	schemas.KeyEscape:    kb.Escape,
}

func (d *ChromeDriver) PressKey(ctx context.Context, key string, modifiers schemas.KeyModifier) error {
	if mapped, ok := namedKeys[key]; ok {
		key = mapped
	}
	var opts []chromedp.KeyOption
	if modifiers != schemas.ModifierNone {
		opts = append(opts, chromedp.KeyModifiers(input.Modifier(modifiers)))
	}
	return d.run(ctx, chromedp.KeyEvent(key, opts...))
}

func (d *ChromeDriver) TypeText(ctx context.Context, text string) error {
	return d.run(ctx, chromedp.KeyEvent(text))
}

func (d *ChromeDriver) Evaluate(ctx context.Context, script string, result interface{}) error {
	return d.run(ctx, chromedp.Evaluate(script, result, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
}

// InjectScript runs script in the current document and every future one.
func (d *ChromeDriver) InjectScript(ctx context.Context, script string) error {
	return d.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.Evaluate(script, nil),
	)
}

// Close shuts the browser down; later calls are no-ops.
func (d *ChromeDriver) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(d.ctx) }()
		select {
		case err = <-done:
		case <-ctx.Done():
			err = ctx.Err()
			d.logger.Warn("Browser did not close in time, forcing.", zap.Error(err))
		}
		d.cancel()
	})
	return err
}
