// Package config holds the application's root configuration.
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/retry"
)

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Config is the root configuration structure for the entire application.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" json:"logger" yaml:"logger"`
	Postgres PostgresConfig `mapstructure:"postgres" json:"postgres" yaml:"postgres"`
	Engine   EngineConfig   `mapstructure:"engine" json:"engine" yaml:"engine"`
	Browser  BrowserConfig  `mapstructure:"browser" json:"browser" yaml:"browser"`
	Poll     poll.Config    `mapstructure:"poll" json:"poll" yaml:"poll"`
	Anomaly  anomaly.Config `mapstructure:"anomaly" json:"anomaly" yaml:"anomaly"`
	Retry    RetryConfig    `mapstructure:"retry" json:"retry" yaml:"retry"`
	Recipes  RecipesConfig  `mapstructure:"recipes" json:"recipes" yaml:"recipes"`
}

// ColorConfig defines the color settings for different log levels.
// These are used for console output to make logs more readable.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" json:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" json:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" json:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" json:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" json:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" json:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" json:"fatal" yaml:"fatal"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" json:"level" yaml:"level"`
	Format      string      `mapstructure:"format" json:"format" yaml:"format"`
	Output      string      `mapstructure:"output" json:"output" yaml:"output"`
	AddSource   bool        `mapstructure:"add_source" json:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" json:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" json:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" json:"colors" yaml:"colors"`
}

// PostgresConfig holds settings for the run history database. An empty URL
// disables persistence.
type PostgresConfig struct {
	URL string `mapstructure:"url" json:"url" yaml:"url"`
}

// EngineConfig holds settings for the job engine.
type EngineConfig struct {
	QueueSize         int           `mapstructure:"queue_size" json:"queue_size" yaml:"queue_size"`
	WorkerConcurrency int           `mapstructure:"worker_concurrency" json:"worker_concurrency" yaml:"worker_concurrency"`
	DefaultJobTimeout time.Duration `mapstructure:"default_job_timeout" json:"default_job_timeout" yaml:"default_job_timeout"`
}

// BrowserConfig holds the default session settings plus interaction tuning.
type BrowserConfig struct {
	schemas.SessionConfig `mapstructure:",squash" yaml:",inline"`
	Humanoid              humanoid.Config `mapstructure:"humanoid" json:"humanoid" yaml:"humanoid"`
}

// RetryConfig holds the defaults for retried steps.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay" json:"delay" yaml:"delay"`
}

// RecipesConfig points at user recipes that extend or override the built-in ones.
type RecipesConfig struct {
	Dir string `mapstructure:"dir" json:"dir" yaml:"dir"`
}

// SetDefaults registers every default with viper so env overrides bind.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output", "stderr")
	v.SetDefault("logger.service_name", "webauto")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	v.SetDefault("postgres.url", "")

	v.SetDefault("engine.queue_size", 100)
	v.SetDefault("engine.worker_concurrency", 2)
	v.SetDefault("engine.default_job_timeout", 30*time.Minute)

	v.SetDefault("browser.os", "")
	v.SetDefault("browser.show_browser", false)
	v.SetDefault("browser.keep_open", false)
	v.SetDefault("browser.width", schemas.DefaultViewportWidth)
	v.SetDefault("browser.height", schemas.DefaultViewportHeight)
	v.SetDefault("browser.locale", schemas.DefaultLocale)
	v.SetDefault("browser.timezone_id", schemas.DefaultTimezoneID)
	v.SetDefault("browser.user_agent", schemas.DefaultUserAgent)
	v.SetDefault("browser.remote_endpoint", "")

	h := humanoid.DefaultConfig()
	v.SetDefault("browser.humanoid.element_wait_timeout", h.ElementWaitTimeout)
	v.SetDefault("browser.humanoid.click_offset_ratio", h.ClickOffsetRatio)
	v.SetDefault("browser.humanoid.min_move_steps", h.MinMoveSteps)
	v.SetDefault("browser.humanoid.max_move_steps", h.MaxMoveSteps)
	v.SetDefault("browser.humanoid.perlin_amplitude", h.PerlinAmplitude)
	v.SetDefault("browser.humanoid.pre_click_min_ms", h.PreClickMinMs)
	v.SetDefault("browser.humanoid.pre_click_max_ms", h.PreClickMaxMs)
	v.SetDefault("browser.humanoid.hold_min_ms", h.HoldMinMs)
	v.SetDefault("browser.humanoid.hold_max_ms", h.HoldMaxMs)
	v.SetDefault("browser.humanoid.post_click_min_ms", h.PostClickMinMs)
	v.SetDefault("browser.humanoid.post_click_max_ms", h.PostClickMaxMs)
	v.SetDefault("browser.humanoid.key_delay_min_ms", h.KeyDelayMinMs)
	v.SetDefault("browser.humanoid.key_delay_max_ms", h.KeyDelayMaxMs)
	v.SetDefault("browser.humanoid.scroll_focus_min_ms", h.ScrollFocusMinMs)
	v.SetDefault("browser.humanoid.scroll_focus_max_ms", h.ScrollFocusMaxMs)
	v.SetDefault("browser.humanoid.scroll_settle_min_ms", h.ScrollSettleMinMs)
	v.SetDefault("browser.humanoid.scroll_settle_max_ms", h.ScrollSettleMaxMs)

	p := poll.DefaultConfig()
	v.SetDefault("poll.interval", p.Interval)
	v.SetDefault("poll.max_pending_sleep", p.MaxPendingSleep)
	v.SetDefault("poll.idle_min", p.IdleMin)
	v.SetDefault("poll.idle_max", p.IdleMax)
	v.SetDefault("poll.default_timeout", p.DefaultTimeout)

	a := anomaly.DefaultConfig()
	v.SetDefault("anomaly.detect_timeout", a.DetectTimeout)
	v.SetDefault("anomaly.default_max_wait", a.DefaultMaxWait)
	v.SetDefault("anomaly.check_interval", a.CheckInterval)
	v.SetDefault("anomaly.alert_interval", a.AlertInterval)
	v.SetDefault("anomaly.alert_cap", a.AlertCap)
	v.SetDefault("anomaly.dismiss_wait", a.DismissWait)

	v.SetDefault("retry.max_attempts", retry.DefaultAttempts)
	v.SetDefault("retry.delay", retry.DefaultDelay)

	v.SetDefault("recipes.dir", "")
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string
	switch c.Logger.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logger.format %q is not one of console, json", c.Logger.Format))
	}
	switch c.Logger.Output {
	case "", "stderr", "stdout", "none":
	default:
		problems = append(problems, fmt.Sprintf("logger.output %q is not one of stderr, stdout, none", c.Logger.Output))
	}
	if c.Engine.WorkerConcurrency < 1 {
		problems = append(problems, "engine.worker_concurrency must be at least 1")
	}
	if c.Engine.QueueSize < 0 {
		problems = append(problems, "engine.queue_size must not be negative")
	}
	if c.Browser.Width < 0 || c.Browser.Height < 0 {
		problems = append(problems, "browser.width and browser.height must not be negative")
	}
	switch c.Browser.OS {
	case "", schemas.OSMacOS, schemas.OSWindows, schemas.OSLinux:
	default:
		problems = append(problems, fmt.Sprintf("browser.os %q is not one of macos, windows, linux", c.Browser.OS))
	}
	if c.Poll.Interval <= 0 {
		problems = append(problems, "poll.interval must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, "retry.max_attempts must be at least 1")
	}
	if c.Retry.Delay < 0 {
		problems = append(problems, "retry.delay must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: invalid configuration: %s", schemas.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// SessionConfig returns the default session settings.
func (c *Config) SessionConfig() schemas.SessionConfig {
	return c.Browser.SessionConfig
}

// HumanoidConfig returns the interaction tuning bound to the session platform.
func (c *Config) HumanoidConfig(platform schemas.OS) humanoid.Config {
	h := c.Browser.Humanoid
	h.Platform = platform
	return h
}

// Load initializes the configuration singleton from Viper.
func Load(v *viper.Viper) error {
	once.Do(func() {
		var cfg Config
		if err := v.Unmarshal(&cfg); err != nil {
			loadErr = fmt.Errorf("error unmarshaling config: %w", err)
			return
		}
		instance = &cfg
	})
	return loadErr
}

// Get returns the loaded configuration instance.
func Get() *Config {
	if instance == nil {
		panic("Configuration not initialized. Call config.Load() in the root command.")
	}
	return instance
}

// Set replaces the singleton; used by tests and embedders that build a Config by hand.
func Set(cfg *Config) {
	once.Do(func() {})
	instance = cfg
	loadErr = nil
}
