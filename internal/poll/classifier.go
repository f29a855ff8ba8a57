// Package poll classifies the state of asynchronous page operations by
// repeatedly evaluating success, warning, error and pending predicates.
package poll

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"go.uber.org/zap"
)

// Config tunes the polling cadence.
type Config struct {
	// Interval is the growth step of the progressive pending sleep.
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	// MaxPendingSleep caps the progressive sleep.
	MaxPendingSleep time.Duration `mapstructure:"max_pending_sleep" json:"max_pending_sleep" yaml:"max_pending_sleep"`
	// IdleMin and IdleMax bound the random sleep when nothing matched.
	IdleMin time.Duration `mapstructure:"idle_min" json:"idle_min" yaml:"idle_min"`
	IdleMax time.Duration `mapstructure:"idle_max" json:"idle_max" yaml:"idle_max"`
	// DefaultTimeout applies when Poll is given a non-positive timeout.
	DefaultTimeout time.Duration `mapstructure:"default_timeout" json:"default_timeout" yaml:"default_timeout"`
}

// DefaultConfig returns the stock cadence.
func DefaultConfig() Config {
	return Config{
		Interval:        time.Second,
		MaxPendingSleep: 5 * time.Second,
		IdleMin:         time.Second,
		IdleMax:         2 * time.Second,
		DefaultTimeout:  5 * time.Minute,
	}
}

// Predicates groups the four classification checks. Nil entries are skipped.
type Predicates struct {
	Success Predicate
	Warning Predicate
	Error   Predicate
	Pending Predicate
}

// Classifier runs the polling loop.
type Classifier struct {
	cfg    Config
	clock  clock.Clock
	logger *zap.Logger

	// rngMu guards rng; parallel steps share one Classifier.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a Classifier. A nil clock means wall time.
func New(cfg Config, logger *zap.Logger, clk clock.Clock) *Classifier {
	d := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = d.Interval
	}
	if cfg.MaxPendingSleep <= 0 {
		cfg.MaxPendingSleep = d.MaxPendingSleep
	}
	if cfg.IdleMin <= 0 || cfg.IdleMax < cfg.IdleMin {
		cfg.IdleMin, cfg.IdleMax = d.IdleMin, d.IdleMax
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = d.DefaultTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{
		cfg:    cfg,
		clock:  clk,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger: logger.Named("poll"),
	}
}

// WithRand swaps the random source used for idle sleeps.
func (c *Classifier) WithRand(rng *rand.Rand) *Classifier {
	c.rng = rng
	return c
}

// Poll evaluates the predicates in priority order (error, warning, success)
// until one matches or timeout elapses. A matching pending predicate grows the
// sleep by one interval per consecutive hit up to the cap; otherwise a random
// idle sleep is used. Sleeps never extend past the deadline.
func (c *Classifier) Poll(ctx context.Context, d schemas.Driver, preds Predicates, timeout time.Duration) schemas.PollOutcome {
	if timeout <= 0 {
		timeout = c.cfg.DefaultTimeout
	}
	deadline := c.clock.Now().Add(timeout)
	consecutivePending := 0

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return schemas.TimedOut(err.Error())
		}

		if ok, detail := c.eval(ctx, d, preds.Error, "error"); ok {
			return schemas.Failure(detail)
		}
		if ok, detail := c.eval(ctx, d, preds.Warning, "warning"); ok {
			return schemas.Warning(detail)
		}
		if ok, detail := c.eval(ctx, d, preds.Success, "success"); ok {
			return schemas.Success(detail)
		}

		remaining := deadline.Sub(c.clock.Now())
		if remaining <= 0 {
			c.logger.Debug("Poll deadline reached", zap.Int("iterations", iteration), zap.Duration("timeout", timeout))
			return schemas.TimedOut(fmt.Sprintf("no terminal state within %s", timeout))
		}

		var sleep time.Duration
		if ok, _ := c.eval(ctx, d, preds.Pending, "pending"); ok {
			consecutivePending++
			sleep = time.Duration(consecutivePending) * c.cfg.Interval
			if sleep > c.cfg.MaxPendingSleep {
				sleep = c.cfg.MaxPendingSleep
			}
		} else {
			consecutivePending = 0
			sleep = c.idleSleep()
		}
		if sleep > remaining {
			sleep = remaining
		}

		if err := c.clock.Sleep(ctx, sleep); err != nil {
			return schemas.TimedOut(err.Error())
		}
	}
}

func (c *Classifier) eval(ctx context.Context, d schemas.Driver, p Predicate, kind string) (bool, string) {
	if p == nil {
		return false, ""
	}
	ok, detail, err := p(ctx, d)
	if err != nil {
		c.logger.Debug("Predicate evaluation failed", zap.String("kind", kind), zap.Error(err))
		return false, ""
	}
	return ok, detail
}

func (c *Classifier) idleSleep() time.Duration {
	span := c.cfg.IdleMax - c.cfg.IdleMin
	if span <= 0 {
		return c.cfg.IdleMin
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return c.cfg.IdleMin + time.Duration(c.rng.Int63n(int64(span)+1))
}
