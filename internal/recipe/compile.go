package recipe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

// Plan is a recipe bound to parameters, ready for workflow.Runner.
type Plan struct {
	Name       string
	Steps      []workflow.Step
	Signatures []anomaly.Signature
	Params     map[string]interface{}
}

// CompileOption adjusts compilation.
type CompileOption func(*compiler)

// WithHeadless makes login walls escalate instead of waiting for an operator.
func WithHeadless(headless bool) CompileOption {
	return func(c *compiler) { c.headless = headless }
}

// WithLabels sets the labels used by templates that are rendered at compile
// time (if, for_each and conditions). Action fields always use the labels of
// the running session.
func WithLabels(labels i18n.Labels) CompileOption {
	return func(c *compiler) { c.labels = labels }
}

type compiler struct {
	headless bool
	labels   i18n.Labels
}

// Compile binds params to r. if and for_each groups are expanded here, so the
// returned step list is exactly what will run.
func Compile(r *Recipe, params map[string]interface{}, opts ...CompileOption) (*Plan, error) {
	c := &compiler{labels: i18n.Default().For(i18n.DefaultLanguage)}
	for _, opt := range opts {
		opt(c)
	}

	resolved, err := r.resolve(params)
	if err != nil {
		return nil, err
	}
	data := newScope(resolved)

	var steps []workflow.Step
	if err := c.expand(r.Steps, data, &steps); err != nil {
		return nil, fmt.Errorf("recipe %q: %w", r.Name, err)
	}
	sigs, err := c.signatures(r.Anomalies, data)
	if err != nil {
		return nil, fmt.Errorf("recipe %q: %w", r.Name, err)
	}
	return &Plan{Name: r.Name, Steps: steps, Signatures: sigs, Params: resolved}, nil
}

// resolve applies defaults and checks required parameters. Declared
// parameters without a value render as empty strings.
func (r *Recipe) resolve(params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params)+len(r.Params))
	for k, v := range params {
		out[k] = v
	}

	var missing []string
	for _, p := range r.Params {
		if v, ok := out[p.Name]; ok && v != nil && v != "" {
			continue
		}
		switch {
		case p.Default != nil:
			out[p.Name] = p.Default
		case p.Required:
			missing = append(missing, p.Name)
		default:
			out[p.Name] = ""
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("%w: recipe %q missing required parameters: %s", schemas.ErrValidation, r.Name, strings.Join(missing, ", "))
	}
	return out, nil
}

func (c *compiler) expand(specs []StepSpec, data scope, out *[]workflow.Step) error {
	for i := range specs {
		s := &specs[i]
		if s.If != "" {
			cond, err := render(s.If, data, c.labels)
			if err != nil {
				return err
			}
			if !truthy(cond) {
				continue
			}
		}

		if len(s.Steps) == 0 && s.ForEach == "" {
			step, err := c.step(s, data)
			if err != nil {
				return err
			}
			*out = append(*out, step)
			continue
		}

		if s.ForEach == "" {
			if err := c.expand(s.Steps, data, out); err != nil {
				return err
			}
			continue
		}
		items, err := listOf(data[s.ForEach])
		if err != nil {
			return fmt.Errorf("for_each %q: %w", s.ForEach, err)
		}
		for idx, item := range items {
			if err := c.expand(s.Steps, data.with(item, idx), out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compiler) step(s *StepSpec, data scope) (workflow.Step, error) {
	name, err := render(s.Name, data, c.labels)
	if err != nil {
		return workflow.Step{}, err
	}
	if name == "" {
		name = s.Action
	}

	build, ok := builders[s.Action]
	if !ok {
		return workflow.Step{}, fmt.Errorf("step %q: %w: unknown action %q", name, schemas.ErrValidation, s.Action)
	}
	action, err := build(s, data)
	if err != nil {
		return workflow.Step{}, fmt.Errorf("step %q: %w", name, err)
	}
	policy, err := workflow.ParsePolicy(s.OnFailure)
	if err != nil {
		return workflow.Step{}, fmt.Errorf("step %q: %w", name, err)
	}

	step := workflow.Step{
		Name:               name,
		Action:             action,
		OnFailure:          policy,
		Guard:              s.Guard,
		ReinvokeOnRecovery: s.Reinvoke,
		ParallelGroup:      s.Parallel,
	}
	if s.Wait != nil {
		preds, err := s.Wait.condition(data, c.labels)
		if err != nil {
			return workflow.Step{}, fmt.Errorf("step %q: %w", name, err)
		}
		step.Wait = &workflow.WaitCondition{Predicates: preds, Timeout: s.Wait.Timeout}
	}
	return step, nil
}

func (c *compiler) signatures(specs []AnomalySpec, data scope) ([]anomaly.Signature, error) {
	sigs := make([]anomaly.Signature, 0, len(specs))
	for _, a := range specs {
		detect, err := a.Detect.predicate(data, c.labels)
		if err != nil {
			return nil, fmt.Errorf("anomaly %q: %w", a.Name, err)
		}

		if strings.EqualFold(a.Recovery, "login") {
			sig := anomaly.LoginWallSignature(detect, c.headless)
			if a.Name != "" {
				sig.Name = a.Name
			}
			sig.MaxWait = a.MaxWait
			sigs = append(sigs, sig)
			continue
		}

		recovery, err := anomaly.ParseRecovery(a.Recovery)
		if err != nil {
			return nil, fmt.Errorf("anomaly %q: %w", a.Name, err)
		}
		dismiss, err := render(a.Dismiss, data, c.labels)
		if err != nil {
			return nil, err
		}
		if recovery == anomaly.Dismiss && dismiss == "" {
			return nil, fmt.Errorf("%w: anomaly %q dismisses without a dismiss selector", schemas.ErrValidation, a.Name)
		}
		sigs = append(sigs, anomaly.Signature{
			Name:            a.Name,
			Detect:          detect,
			Recovery:        recovery,
			DismissSelector: dismiss,
			MaxWait:         a.MaxWait,
			Alert:           a.Alert,
		})
	}
	return sigs, nil
}
