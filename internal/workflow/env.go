package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
)

// Env is what a step action sees of the run.
type Env struct {
	Driver     schemas.Driver
	Human      *humanoid.Humanoid
	Classifier *poll.Classifier
	Params     map[string]interface{}
	Logger     *zap.Logger
	Session    schemas.SessionConfig

	mu     sync.Mutex
	report *schemas.RunReport

	labelsMu   sync.Mutex
	translator *i18n.Translator
	labels     i18n.Labels
	labelsSet  bool
}

// Labels returns the UI labels for the site's language. The language is
// fixed by the first document that declares one in <html lang>; until then
// the browser locale is used and nothing is cached.
func (e *Env) Labels(ctx context.Context) i18n.Labels {
	e.labelsMu.Lock()
	defer e.labelsMu.Unlock()
	if e.labelsSet || e.translator == nil {
		return e.labels
	}

	lang, err := i18n.ReadLanguage(ctx, e.Driver)
	if err != nil {
		e.Logger.Debug("Falling back to default labels", zap.Error(err))
		if e.labels == nil {
			e.labels = e.translator.For(i18n.DefaultLanguage)
		}
		return e.labels
	}
	e.labels = e.translator.For(lang.Resolve())
	if lang.Declared != "" {
		e.labelsSet = true
		e.Logger.Debug("Resolved page language", zap.String("lang", lang.Declared))
	}
	return e.labels
}

// Param returns a parameter value.
func (e *Env) Param(key string) (interface{}, bool) {
	v, ok := e.Params[key]
	return v, ok
}

// String returns a parameter formatted as a string, or "" when unset.
func (e *Env) String(key string) string {
	v, ok := e.Params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Bool returns a boolean parameter; strings "true", "1" and "yes" count as true.
func (e *Env) Bool(key string) bool {
	switch v := e.Params[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1" || v == "yes"
	case int:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}

// SetResult stores a value in the report payload.
func (e *Env) SetResult(key string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.report.Payload == nil {
		e.report.Payload = make(map[string]interface{})
	}
	e.report.Payload[key] = value
}

// Result reads back a payload value set earlier in the run.
func (e *Env) Result(key string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.report.Payload[key]
	return v, ok
}

// Warn records a non-fatal warning.
func (e *Env) Warn(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.Warnings = append(e.report.Warnings, msg)
	e.Logger.Warn("Step warning", zap.String("warning", msg))
}

func (e *Env) recordError(msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.Errors = append(e.report.Errors, msg)
}

// dismissClicker sends anomaly dismiss clicks through the humanoid pointer.
func (e *Env) dismissClicker() anomaly.CheckOption {
	if e.Human == nil {
		return anomaly.WithClicker(nil)
	}
	return anomaly.WithClicker(e.Human.Click)
}

// NewEnv builds an Env outside a runner, for tests of individual actions.
func NewEnv(d schemas.Driver, human *humanoid.Humanoid, params map[string]interface{}, labels i18n.Labels, logger *zap.Logger) *Env {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Env{
		Driver:    d,
		Human:     human,
		Params:    params,
		Logger:    logger,
		report:    &schemas.RunReport{},
		labels:    labels,
		labelsSet: true,
	}
}

// Report returns a copy of the report accumulated so far.
func (e *Env) Report() schemas.RunReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneReport(*e.report)
}

func cloneReport(r schemas.RunReport) schemas.RunReport {
	if r.Warnings != nil {
		r.Warnings = append([]string(nil), r.Warnings...)
	}
	if r.Errors != nil {
		r.Errors = append([]string(nil), r.Errors...)
	}
	if r.Payload != nil {
		p := make(map[string]interface{}, len(r.Payload))
		for k, v := range r.Payload {
			p[k] = v
		}
		r.Payload = p
	}
	return r
}
