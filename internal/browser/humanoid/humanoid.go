// internal/browser/humanoid/humanoid.go
package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"go.uber.org/zap"
)

// Config holds the randomisation bounds for every human-like primitive.
// Durations expressed in milliseconds are inclusive [min, max] ranges.
type Config struct {
	// Rng overrides the random source. Tests inject a seeded one.
	Rng *rand.Rand `mapstructure:"-" json:"-" yaml:"-"`
	// Platform selects the select-all modifier (Meta on macOS, Ctrl elsewhere).
	Platform schemas.OS `mapstructure:"-" json:"-" yaml:"-"`

	ElementWaitTimeout time.Duration `mapstructure:"element_wait_timeout" json:"element_wait_timeout" yaml:"element_wait_timeout"`
	ClickOffsetRatio   float64       `mapstructure:"click_offset_ratio" json:"click_offset_ratio" yaml:"click_offset_ratio"`
	MinMoveSteps       int           `mapstructure:"min_move_steps" json:"min_move_steps" yaml:"min_move_steps"`
	MaxMoveSteps       int           `mapstructure:"max_move_steps" json:"max_move_steps" yaml:"max_move_steps"`
	PerlinAmplitude    float64       `mapstructure:"perlin_amplitude" json:"perlin_amplitude" yaml:"perlin_amplitude"`

	PreClickMinMs  int `mapstructure:"pre_click_min_ms" json:"pre_click_min_ms" yaml:"pre_click_min_ms"`
	PreClickMaxMs  int `mapstructure:"pre_click_max_ms" json:"pre_click_max_ms" yaml:"pre_click_max_ms"`
	HoldMinMs      int `mapstructure:"hold_min_ms" json:"hold_min_ms" yaml:"hold_min_ms"`
	HoldMaxMs      int `mapstructure:"hold_max_ms" json:"hold_max_ms" yaml:"hold_max_ms"`
	PostClickMinMs int `mapstructure:"post_click_min_ms" json:"post_click_min_ms" yaml:"post_click_min_ms"`
	PostClickMaxMs int `mapstructure:"post_click_max_ms" json:"post_click_max_ms" yaml:"post_click_max_ms"`

	KeyDelayMinMs int `mapstructure:"key_delay_min_ms" json:"key_delay_min_ms" yaml:"key_delay_min_ms"`
	KeyDelayMaxMs int `mapstructure:"key_delay_max_ms" json:"key_delay_max_ms" yaml:"key_delay_max_ms"`

	ScrollFocusMinMs  int `mapstructure:"scroll_focus_min_ms" json:"scroll_focus_min_ms" yaml:"scroll_focus_min_ms"`
	ScrollFocusMaxMs  int `mapstructure:"scroll_focus_max_ms" json:"scroll_focus_max_ms" yaml:"scroll_focus_max_ms"`
	ScrollSettleMinMs int `mapstructure:"scroll_settle_min_ms" json:"scroll_settle_min_ms" yaml:"scroll_settle_min_ms"`
	ScrollSettleMaxMs int `mapstructure:"scroll_settle_max_ms" json:"scroll_settle_max_ms" yaml:"scroll_settle_max_ms"`
}

// DefaultConfig returns the stock pacing profile.
func DefaultConfig() Config {
	return Config{
		ElementWaitTimeout: 5 * time.Second,
		ClickOffsetRatio:   0.15,
		MinMoveSteps:       10,
		MaxMoveSteps:       20,
		PerlinAmplitude:    2.0,
		PreClickMinMs:      100,
		PreClickMaxMs:      250,
		HoldMinMs:          50,
		HoldMaxMs:          150,
		PostClickMinMs:     300,
		PostClickMaxMs:     800,
		KeyDelayMinMs:      15,
		KeyDelayMaxMs:      25,
		ScrollFocusMinMs:   200,
		ScrollFocusMaxMs:   350,
		ScrollSettleMinMs:  2500,
		ScrollSettleMaxMs:  3500,
	}
}

// normalize replaces zero or inverted bounds with the defaults.
func (c *Config) normalize() {
	d := DefaultConfig()
	if c.ElementWaitTimeout <= 0 {
		c.ElementWaitTimeout = d.ElementWaitTimeout
	}
	if c.ClickOffsetRatio <= 0 || c.ClickOffsetRatio >= 0.5 {
		c.ClickOffsetRatio = d.ClickOffsetRatio
	}
	if c.MinMoveSteps <= 0 || c.MaxMoveSteps < c.MinMoveSteps {
		c.MinMoveSteps, c.MaxMoveSteps = d.MinMoveSteps, d.MaxMoveSteps
	}
	if c.PerlinAmplitude < 0 {
		c.PerlinAmplitude = d.PerlinAmplitude
	}
	fix := func(min, max *int, dmin, dmax int) {
		if *min <= 0 || *max < *min {
			*min, *max = dmin, dmax
		}
	}
	fix(&c.PreClickMinMs, &c.PreClickMaxMs, d.PreClickMinMs, d.PreClickMaxMs)
	fix(&c.HoldMinMs, &c.HoldMaxMs, d.HoldMinMs, d.HoldMaxMs)
	fix(&c.PostClickMinMs, &c.PostClickMaxMs, d.PostClickMinMs, d.PostClickMaxMs)
	fix(&c.KeyDelayMinMs, &c.KeyDelayMaxMs, d.KeyDelayMinMs, d.KeyDelayMaxMs)
	fix(&c.ScrollFocusMinMs, &c.ScrollFocusMaxMs, d.ScrollFocusMinMs, d.ScrollFocusMaxMs)
	fix(&c.ScrollSettleMinMs, &c.ScrollSettleMaxMs, d.ScrollSettleMinMs, d.ScrollSettleMaxMs)
}

// Humanoid drives a page with randomised, human-paced pointer and keyboard input.
type Humanoid struct {
	// mu serialises primitives; the pointer position is shared state.
	mu         sync.Mutex
	cfg        Config
	logger     *zap.Logger
	driver     schemas.Driver
	clock      clock.Clock
	rng        *rand.Rand
	noiseX     *perlin.Perlin
	noiseY     *perlin.Perlin
	currentPos Vector2D
}

// New creates a Humanoid bound to one page.
func New(config Config, logger *zap.Logger, driver schemas.Driver, clk clock.Clock) *Humanoid {
	config.normalize()

	seed := time.Now().UnixNano()
	rng := config.Rng
	if rng == nil {
		rng = rand.New(rand.NewSource(seed))
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Standard Perlin parameters.
	alpha, beta, n := 2.0, 2.0, int32(3)

	return &Humanoid{
		cfg:    config,
		logger: logger.Named("humanoid"),
		driver: driver,
		clock:  clk,
		rng:    rng,
		noiseX: perlin.NewPerlin(alpha, beta, n, seed),
		noiseY: perlin.NewPerlin(alpha, beta, n, seed+1),
	}
}

// NewTestHumanoid creates a deterministic instance for tests.
func NewTestHumanoid(driver schemas.Driver, clk clock.Clock, seed int64) *Humanoid {
	cfg := DefaultConfig()
	cfg.Rng = rand.New(rand.NewSource(seed))
	h := New(cfg, zap.NewNop(), driver, clk)
	h.noiseX = perlin.NewPerlin(2, 2, 3, seed)
	h.noiseY = perlin.NewPerlin(2, 2, 3, seed+1)
	return h
}

// Config returns the normalised configuration in use.
func (h *Humanoid) Config() Config {
	return h.cfg
}

// randomDuration draws uniformly from [minMs, maxMs]. Assumes the lock is held.
func (h *Humanoid) randomDuration(minMs, maxMs int) time.Duration {
	if maxMs <= minMs {
		return time.Duration(minMs) * time.Millisecond
	}
	return time.Duration(minMs+h.rng.Intn(maxMs-minMs+1)) * time.Millisecond
}

// awaitBox polls the element until it has a visible, non-empty bounding box.
// Assumes the lock is held.
func (h *Humanoid) awaitBox(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	const tick = 100 * time.Millisecond
	deadline := h.clock.Now().Add(h.cfg.ElementWaitTimeout)
	for {
		info, err := h.driver.Inspect(ctx, selector)
		if err != nil {
			h.logger.Debug("Inspect failed while waiting for element", zap.String("selector", selector), zap.Error(err))
		} else if info != nil && info.Visible && info.Box != nil && info.Box.Width > 0 && info.Box.Height > 0 {
			return info.Box, nil
		}

		if !h.clock.Now().Before(deadline) {
			return nil, fmt.Errorf("humanoid: %w: %q had no bounding box after %s",
				schemas.ErrElementNotInteractable, selector, h.cfg.ElementWaitTimeout)
		}
		if err := h.clock.Sleep(ctx, tick); err != nil {
			return nil, err
		}
	}
}
