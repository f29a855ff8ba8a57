// Package anomaly detects known interstitials (CAPTCHA, login walls,
// confirmation modals) and recovers from them without aborting the workflow.
package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"go.uber.org/zap"
)

// Config tunes detection and recovery.
type Config struct {
	// DetectTimeout is how long a detector may take to match. Zero checks once.
	DetectTimeout  time.Duration `mapstructure:"detect_timeout" json:"detect_timeout" yaml:"detect_timeout"`
	DefaultMaxWait time.Duration `mapstructure:"default_max_wait" json:"default_max_wait" yaml:"default_max_wait"`
	CheckInterval  time.Duration `mapstructure:"check_interval" json:"check_interval" yaml:"check_interval"`
	AlertInterval  time.Duration `mapstructure:"alert_interval" json:"alert_interval" yaml:"alert_interval"`
	AlertCap       time.Duration `mapstructure:"alert_cap" json:"alert_cap" yaml:"alert_cap"`
	DismissWait    time.Duration `mapstructure:"dismiss_wait" json:"dismiss_wait" yaml:"dismiss_wait"`
}

// DefaultConfig returns the stock bounds.
func DefaultConfig() Config {
	return Config{
		DetectTimeout:  2 * time.Second,
		DefaultMaxWait: 5 * time.Minute,
		CheckInterval:  time.Second,
		AlertInterval:  15 * time.Second,
		AlertCap:       4 * time.Minute,
		DismissWait:    5 * time.Second,
	}
}

// Interceptor checks a page against a set of signatures.
type Interceptor struct {
	cfg     Config
	logger  *zap.Logger
	clock   clock.Clock
	alerter Alerter
}

// New creates an Interceptor. DetectTimeout is used as given; the other
// bounds fall back to defaults when non-positive.
func New(cfg Config, logger *zap.Logger, clk clock.Clock, alerter Alerter) *Interceptor {
	d := DefaultConfig()
	if cfg.DetectTimeout < 0 {
		cfg.DetectTimeout = d.DetectTimeout
	}
	if cfg.DefaultMaxWait <= 0 {
		cfg.DefaultMaxWait = d.DefaultMaxWait
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = d.CheckInterval
	}
	if cfg.AlertInterval <= 0 {
		cfg.AlertInterval = d.AlertInterval
	}
	if cfg.AlertCap <= 0 {
		cfg.AlertCap = d.AlertCap
	}
	if cfg.DismissWait <= 0 {
		cfg.DismissWait = d.DismissWait
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if alerter == nil {
		alerter = NewTerminalAlerter(logger)
	}
	return &Interceptor{cfg: cfg, logger: logger.Named("anomaly"), clock: clk, alerter: alerter}
}

// ClickFunc clicks a selector on the current page.
type ClickFunc func(ctx context.Context, selector string) error

type checkOptions struct {
	click ClickFunc
}

// CheckOption adjusts a single CheckAndRecover call.
type CheckOption func(*checkOptions)

// WithClicker routes Dismiss clicks through fn, typically the session's
// humanoid click. Without it the driver clicks directly.
func WithClicker(fn ClickFunc) CheckOption {
	return func(o *checkOptions) { o.click = fn }
}

// CheckAndRecover runs every signature's detector and recovers the ones that
// match, in order. It returns the names of the signatures it handled. The
// first unrecoverable signature stops the check with ErrAnomalyUnresolved.
func (i *Interceptor) CheckAndRecover(ctx context.Context, d schemas.Driver, sigs []Signature, opts ...CheckOption) ([]string, error) {
	o := checkOptions{click: d.Click}
	for _, opt := range opts {
		opt(&o)
	}
	if o.click == nil {
		o.click = d.Click
	}

	var handled []string
	for _, sig := range sigs {
		if sig.Detect == nil {
			continue
		}
		present, err := i.detect(ctx, d, sig)
		if err != nil {
			return handled, err
		}
		if !present {
			continue
		}

		log := i.logger.With(zap.String("anomaly", sig.Name), zap.Stringer("recovery", sig.Recovery))
		log.Info("Anomaly detected")

		if err := i.recover(ctx, d, o.click, sig, log); err != nil {
			log.Warn("Anomaly recovery failed", zap.Error(err))
			return handled, err
		}
		log.Info("Anomaly cleared")
		handled = append(handled, sig.Name)
	}
	return handled, nil
}

// detect evaluates the detector until it matches or DetectTimeout elapses.
func (i *Interceptor) detect(ctx context.Context, d schemas.Driver, sig Signature) (bool, error) {
	const tick = 250 * time.Millisecond
	deadline := i.clock.Now().Add(i.cfg.DetectTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, _, err := sig.Detect(ctx, d)
		if err != nil {
			i.logger.Debug("Detector failed", zap.String("anomaly", sig.Name), zap.Error(err))
		}
		if ok {
			return true, nil
		}
		remaining := deadline.Sub(i.clock.Now())
		if remaining <= 0 {
			return false, nil
		}
		sleep := tick
		if sleep > remaining {
			sleep = remaining
		}
		if err := i.clock.Sleep(ctx, sleep); err != nil {
			return false, err
		}
	}
}

func (i *Interceptor) recover(ctx context.Context, d schemas.Driver, click ClickFunc, sig Signature, log *zap.Logger) error {
	maxWait := sig.MaxWait
	if maxWait <= 0 {
		maxWait = i.cfg.DefaultMaxWait
	}

	switch sig.Recovery {
	case Escalate:
		return fmt.Errorf("%w: %s requires manual intervention", schemas.ErrAnomalyUnresolved, sig.Name)

	case Dismiss:
		if sig.DismissSelector == "" {
			return fmt.Errorf("%w: %s has no dismiss control", schemas.ErrAnomalyUnresolved, sig.Name)
		}
		if err := click(ctx, sig.DismissSelector); err != nil {
			return fmt.Errorf("%w: dismissing %s: %v", schemas.ErrAnomalyUnresolved, sig.Name, err)
		}
		wait := i.cfg.DismissWait
		if wait > maxWait {
			wait = maxWait
		}
		return i.waitForClear(ctx, d, sig, wait, log)

	default:
		return i.waitForClear(ctx, d, sig, maxWait, log)
	}
}

// waitForClear blocks until the detector stops matching. With sig.Alert an
// alert fires immediately and then every AlertInterval, but never after AlertCap.
func (i *Interceptor) waitForClear(ctx context.Context, d schemas.Driver, sig Signature, maxWait time.Duration, log *zap.Logger) error {
	start := i.clock.Now()
	deadline := start.Add(maxWait)
	var nextAlert time.Time
	if sig.Alert {
		nextAlert = start
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, _, err := sig.Detect(ctx, d)
		if err == nil && !ok {
			return nil
		}

		now := i.clock.Now()
		if !now.Before(deadline) {
			return fmt.Errorf("%w: %s still present after %s", schemas.ErrAnomalyUnresolved, sig.Name, maxWait)
		}

		if sig.Alert && !now.Before(nextAlert) && now.Sub(start) < i.cfg.AlertCap {
			if err := i.alerter.Alert(ctx, d, sig.Name); err != nil {
				log.Debug("Alert delivery failed", zap.Error(err))
			}
			nextAlert = now.Add(i.cfg.AlertInterval)
		}

		sleep := i.cfg.CheckInterval
		if remaining := deadline.Sub(now); sleep > remaining {
			sleep = remaining
		}
		if err := i.clock.Sleep(ctx, sleep); err != nil {
			return err
		}
	}
}
