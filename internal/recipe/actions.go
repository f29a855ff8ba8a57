package recipe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

// defaultOptionalWait bounds how long an optional target is looked for.
const defaultOptionalWait = 2 * time.Second

type actionFunc = func(ctx context.Context, env *workflow.Env) error

// builder validates a step spec and returns its action. A nil action means
// the step only waits.
type builder func(s *StepSpec, data scope) (actionFunc, error)

var builders = map[string]builder{
	"":             buildWait,
	"wait":         buildWait,
	"navigate":     buildNavigate,
	"reload":       buildReload,
	"click":        buildClick,
	"type":         buildType,
	"press":        buildPress,
	"set_files":    buildSetFiles,
	"set_checked":  buildSetChecked,
	"set_switch":   buildSetSwitch,
	"sleep":        buildSleep,
	"scroll":       buildScroll,
	"evaluate":     buildEvaluate,
	"extract_attr": buildExtractAttr,
	"extract_text": buildExtractText,
	"extract_link": buildExtractLink,
	"fail_if":      buildFailIf,
}

// Actions lists the action names a recipe may use.
func Actions() []string {
	out := make([]string, 0, len(builders))
	for name := range builders {
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

func needField(field, value, action string) error {
	if value == "" {
		return fmt.Errorf("%w: %s needs %s", schemas.ErrValidation, action, field)
	}
	return checkTemplate(value)
}

func buildWait(s *StepSpec, _ scope) (actionFunc, error) {
	if s.Wait == nil {
		return nil, fmt.Errorf("%w: wait step has no conditions", schemas.ErrValidation)
	}
	return nil, nil
}

func buildNavigate(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("url", s.URL, "navigate"); err != nil {
		return nil, err
	}
	until := schemas.WaitUntil(s.WaitUntil)
	switch until {
	case "", schemas.WaitLoad, schemas.WaitDOMContentLoaded, schemas.WaitNetworkIdle:
	default:
		return nil, fmt.Errorf("%w: unknown wait_until %q", schemas.ErrValidation, s.WaitUntil)
	}
	return func(ctx context.Context, env *workflow.Env) error {
		url, err := renderFor(ctx, s.URL, data, env)
		if err != nil {
			return err
		}
		return env.Driver.Navigate(ctx, url, schemas.NavigateOptions{WaitUntil: until, Timeout: s.Timeout})
	}, nil
}

func buildReload(*StepSpec, scope) (actionFunc, error) {
	return func(ctx context.Context, env *workflow.Env) error {
		return env.Driver.Reload(ctx)
	}, nil
}

func buildClick(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "click"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		if s.When != nil {
			pred, err := s.When.predicate(data, env.Labels(ctx))
			if err != nil {
				return err
			}
			if ok, _, err := pred(ctx, env.Driver); err != nil || !ok {
				env.Logger.Debug("Click condition not met, skipping", zap.String("selector", sel))
				return err
			}
		}
		if s.Optional {
			found, err := visibleWithin(ctx, env, sel, s.Timeout)
			if err != nil {
				return err
			}
			if !found {
				env.Logger.Debug("Optional target absent, skipping click", zap.String("selector", sel))
				return nil
			}
		}
		return click(ctx, env, sel, s.Direct)
	}, nil
}

func buildType(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "type"); err != nil {
		return nil, err
	}
	if err := checkTemplate(s.Text); err != nil {
		return nil, err
	}
	mode, err := humanoid.ParseTypeMode(s.Mode)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		text, err := renderFor(ctx, s.Text, data, env)
		if err != nil {
			return err
		}
		if s.Direct || env.Human == nil {
			if err := env.Driver.Click(ctx, sel); err != nil {
				return err
			}
			return env.Driver.TypeText(ctx, text)
		}
		return env.Human.Type(ctx, sel, text, mode)
	}, nil
}

func buildPress(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("key", s.Key, "press"); err != nil {
		return nil, err
	}
	for _, m := range s.Modifiers {
		if _, err := parseModifier(m, schemas.OSMacOS); err != nil {
			return nil, err
		}
	}
	return func(ctx context.Context, env *workflow.Env) error {
		key, err := renderFor(ctx, s.Key, data, env)
		if err != nil {
			return err
		}
		var mods schemas.KeyModifier
		for _, m := range s.Modifiers {
			mod, _ := parseModifier(m, env.Session.OS)
			mods |= mod
		}
		if env.Human != nil {
			return env.Human.PressKey(ctx, key, mods)
		}
		return env.Driver.PressKey(ctx, key, mods)
	}, nil
}

// parseModifier maps a modifier name. "primary" is the platform's
// select-all modifier.
func parseModifier(name string, os schemas.OS) (schemas.KeyModifier, error) {
	switch strings.ToLower(name) {
	case "ctrl", "control":
		return schemas.ModifierCtrl, nil
	case "alt":
		return schemas.ModifierAlt, nil
	case "shift":
		return schemas.ModifierShift, nil
	case "meta", "cmd":
		return schemas.ModifierMeta, nil
	case "primary":
		return humanoid.SelectAllModifier(os), nil
	}
	return schemas.ModifierNone, fmt.Errorf("%w: unknown key modifier %q", schemas.ErrValidation, name)
}

func buildSetFiles(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "set_files"); err != nil {
		return nil, err
	}
	for _, f := range s.Files {
		if err := checkTemplate(f); err != nil {
			return nil, err
		}
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		var files []string
		for _, f := range s.Files {
			out, err := renderFor(ctx, f, data, env)
			if err != nil {
				return err
			}
			// A template may expand to several newline-separated paths.
			for _, line := range strings.Split(out, "\n") {
				if line = strings.TrimSpace(line); line != "" {
					files = append(files, line)
				}
			}
		}
		if len(files) == 0 {
			if s.Optional {
				return nil
			}
			return fmt.Errorf("%w: no files to upload", schemas.ErrValidation)
		}
		return env.Driver.SetFiles(ctx, sel, files)
	}, nil
}

func buildSetChecked(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "set_checked"); err != nil {
		return nil, err
	}
	if err := checkTemplate(s.Checked); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, want, target, err := toggleFields(ctx, s, data, env)
		if err != nil {
			return err
		}
		info, err := env.Driver.Inspect(ctx, sel)
		if err != nil {
			return err
		}
		if info == nil || !info.Exists {
			if s.Optional {
				return workflow.ErrNoChange
			}
			return fmt.Errorf("%w: checkbox %q not found", schemas.ErrElementNotInteractable, sel)
		}
		if info.Disabled {
			env.Logger.Debug("Checkbox disabled, leaving as is", zap.String("selector", sel))
			return workflow.ErrNoChange
		}
		if info.Checked == want {
			return workflow.ErrNoChange
		}
		return click(ctx, env, target, s.Direct)
	}, nil
}

func buildSetSwitch(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "set_switch"); err != nil {
		return nil, err
	}
	if err := checkTemplate(s.Checked); err != nil {
		return nil, err
	}
	attr := s.Attr
	if attr == "" {
		attr = "aria-checked"
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, want, target, err := toggleFields(ctx, s, data, env)
		if err != nil {
			return err
		}
		disabled, _, err := env.Driver.Attribute(ctx, sel, "data-disabled")
		if err != nil {
			return err
		}
		if disabled == "true" {
			env.Warn(fmt.Sprintf("%s: switch is disabled", s.Name))
			return workflow.ErrNoChange
		}
		current, _, err := env.Driver.Attribute(ctx, sel, attr)
		if err != nil {
			return err
		}
		if (current == "true") == want {
			return workflow.ErrNoChange
		}
		return click(ctx, env, target, s.Direct)
	}, nil
}

func toggleFields(ctx context.Context, s *StepSpec, data scope, env *workflow.Env) (sel string, want bool, target string, err error) {
	if sel, err = renderFor(ctx, s.Selector, data, env); err != nil {
		return
	}
	checked, err := renderFor(ctx, s.Checked, data, env)
	if err != nil {
		return
	}
	want = truthy(checked)
	target = sel
	if s.Target != "" {
		target, err = renderFor(ctx, s.Target, data, env)
	}
	return
}

func buildSleep(s *StepSpec, _ scope) (actionFunc, error) {
	if s.Min < 0 || (s.Max != 0 && s.Max < s.Min) {
		return nil, fmt.Errorf("%w: sleep bounds %s..%s", schemas.ErrValidation, s.Min, s.Max)
	}
	upper := s.Max
	if upper == 0 {
		upper = s.Min
	}
	return func(ctx context.Context, env *workflow.Env) error {
		if env.Human == nil {
			return nil
		}
		return env.Human.Pause(ctx, s.Min, upper)
	}, nil
}

func buildScroll(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("container", s.Container, "scroll"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		container, err := renderFor(ctx, s.Container, data, env)
		if err != nil {
			return err
		}
		live, err := renderFor(ctx, s.Live, data, env)
		if err != nil {
			return err
		}
		if env.Human == nil {
			return env.Driver.PressKey(ctx, schemas.KeyArrowDown, schemas.ModifierNone)
		}
		return env.Human.Scroll(ctx, container, live)
	}, nil
}

func buildEvaluate(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("script", s.Script, "evaluate"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		script, err := renderFor(ctx, s.Script, data, env)
		if err != nil {
			return err
		}
		var out interface{}
		if err := env.Driver.Evaluate(ctx, script, &out); err != nil {
			return err
		}
		if s.Into != "" {
			env.SetResult(s.Into, out)
		}
		return nil
	}, nil
}

func buildExtractAttr(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "extract_attr"); err != nil {
		return nil, err
	}
	if err := needField("attr", s.Attr, "extract_attr"); err != nil {
		return nil, err
	}
	if err := needField("into", s.Into, "extract_attr"); err != nil {
		return nil, err
	}
	if s.Decode != "" && s.Decode != decodeDataURL {
		return nil, fmt.Errorf("%w: unknown decode %q", schemas.ErrValidation, s.Decode)
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		value, ok, err := env.Driver.Attribute(ctx, sel, s.Attr)
		if err != nil {
			return err
		}
		if !ok || value == "" {
			return missing(s, sel)
		}
		return store(ctx, s, data, env, value)
	}, nil
}

func buildExtractText(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "extract_text"); err != nil {
		return nil, err
	}
	if err := needField("into", s.Into, "extract_text"); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		text, err := env.Driver.Text(ctx, sel)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return missing(s, sel)
		}
		return store(ctx, s, data, env, text)
	}, nil
}

// buildExtractLink reads the container's markup once and picks the first
// matching descendant, so a list of links costs one round trip.
func buildExtractLink(s *StepSpec, data scope) (actionFunc, error) {
	if err := needField("selector", s.Selector, "extract_link"); err != nil {
		return nil, err
	}
	if err := needField("into", s.Into, "extract_link"); err != nil {
		return nil, err
	}
	match := s.Match
	if match == "" {
		match = "a"
	}
	attr := s.Attr
	if attr == "" {
		attr = "href"
	}
	return func(ctx context.Context, env *workflow.Env) error {
		sel, err := renderFor(ctx, s.Selector, data, env)
		if err != nil {
			return err
		}
		m, err := renderFor(ctx, match, data, env)
		if err != nil {
			return err
		}
		html, err := env.Driver.OuterHTML(ctx, sel)
		if err != nil {
			return err
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return fmt.Errorf("parsing %q: %w", sel, err)
		}
		value, ok := doc.Find(m).First().Attr(attr)
		if !ok || value == "" {
			return missing(s, sel+" "+m)
		}
		return store(ctx, s, data, env, value)
	}, nil
}

func buildFailIf(s *StepSpec, data scope) (actionFunc, error) {
	if s.When == nil {
		return nil, fmt.Errorf("%w: fail_if needs when", schemas.ErrValidation)
	}
	if err := checkTemplate(s.Message); err != nil {
		return nil, err
	}
	return func(ctx context.Context, env *workflow.Env) error {
		pred, err := s.When.predicate(data, env.Labels(ctx))
		if err != nil {
			return err
		}
		matched, detail, err := pred(ctx, env.Driver)
		if err != nil || !matched {
			return err
		}
		msg, err := renderFor(ctx, s.Message, data, env)
		if err != nil {
			return err
		}
		if msg == "" {
			msg = detail
		}
		return fmt.Errorf("%w: %s", schemas.ErrValidation, msg)
	}, nil
}

// renderFor renders an action field with the session's labels. Results
// extracted by earlier steps are visible as .results.
func renderFor(ctx context.Context, text string, data scope, env *workflow.Env) (string, error) {
	if strings.Contains(text, ".results") {
		data = data.withResults(env.Report().Payload)
	}
	return render(text, data, env.Labels(ctx))
}

func missing(s *StepSpec, sel string) error {
	if !s.Required {
		return nil
	}
	return fmt.Errorf("%w: nothing to extract from %q", schemas.ErrValidation, sel)
}

func store(ctx context.Context, s *StepSpec, data scope, env *workflow.Env, value string) error {
	into, err := renderFor(ctx, s.Into, data, env)
	if err != nil {
		return err
	}
	prefix, err := renderFor(ctx, s.Prefix, data, env)
	if err != nil {
		return err
	}
	if s.Decode == decodeDataURL {
		value = dataURLPayload(value)
	}
	env.SetResult(into, prefix+value)
	return nil
}

// decodeDataURL keeps only the payload of a data: URL.
const decodeDataURL = "data_url"

func dataURLPayload(v string) string {
	if strings.HasPrefix(v, "data:") {
		if i := strings.IndexByte(v, ','); i >= 0 {
			v = v[i+1:]
		}
	}
	return strings.Join(strings.Fields(v), "")
}

func click(ctx context.Context, env *workflow.Env, sel string, direct bool) error {
	if direct || env.Human == nil {
		return env.Driver.Click(ctx, sel)
	}
	return env.Human.Click(ctx, sel)
}

// visibleWithin reports whether sel becomes visible before timeout.
func visibleWithin(ctx context.Context, env *workflow.Env, sel string, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		timeout = defaultOptionalWait
	}
	if env.Classifier == nil {
		info, err := env.Driver.Inspect(ctx, sel)
		if err != nil {
			return false, nil
		}
		return info != nil && info.Visible, nil
	}
	outcome := env.Classifier.Poll(ctx, env.Driver, poll.Predicates{Success: poll.Visible(sel)}, timeout)
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return outcome.Kind == schemas.OutcomeSuccess, nil
}
