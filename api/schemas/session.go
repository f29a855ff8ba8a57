package schemas

// OS names the host platform a local browser profile lives on.
type OS string

const (
	OSMacOS   OS = "macos"
	OSWindows OS = "windows"
	OSLinux   OS = "linux"
)

// Launch defaults applied when a SessionConfig leaves a field empty.
const (
	DefaultViewportWidth  = 1400
	DefaultViewportHeight = 800
	DefaultLocale         = "en-US"
	DefaultTimezoneID     = "Asia/Ho_Chi_Minh"
	DefaultUserAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// SessionConfig describes how to obtain a browser session. It is treated as
// immutable once a session has been provisioned from it.
type SessionConfig struct {
	OS             OS       `mapstructure:"os" json:"os" yaml:"os"`
	ProfileDir     string   `mapstructure:"profile_dir" json:"profile_dir,omitempty" yaml:"profile_dir,omitempty"`
	ExecutablePath string   `mapstructure:"executable_path" json:"executable_path,omitempty" yaml:"executable_path,omitempty"`
	ShowBrowser    bool     `mapstructure:"show_browser" json:"show_browser" yaml:"show_browser"`
	KeepOpen       bool     `mapstructure:"keep_open" json:"keep_open" yaml:"keep_open"`
	Width          int      `mapstructure:"width" json:"width,omitempty" yaml:"width,omitempty"`
	Height         int      `mapstructure:"height" json:"height,omitempty" yaml:"height,omitempty"`
	Locale         string   `mapstructure:"locale" json:"locale,omitempty" yaml:"locale,omitempty"`
	TimezoneID     string   `mapstructure:"timezone_id" json:"timezone_id,omitempty" yaml:"timezone_id,omitempty"`
	UserAgent      string   `mapstructure:"user_agent" json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	RemoteEndpoint string   `mapstructure:"remote_endpoint" json:"remote_endpoint,omitempty" yaml:"remote_endpoint,omitempty"`
	Args           []string `mapstructure:"args" json:"args,omitempty" yaml:"args,omitempty"`
}

// Remote reports whether the config attaches to an already running browser.
func (c SessionConfig) Remote() bool {
	return c.RemoteEndpoint != ""
}

// Headless is the inverse of ShowBrowser.
func (c SessionConfig) Headless() bool {
	return !c.ShowBrowser
}

// WithDefaults fills viewport, locale, timezone and user agent when unset.
func (c SessionConfig) WithDefaults() SessionConfig {
	if c.Width <= 0 {
		c.Width = DefaultViewportWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultViewportHeight
	}
	if c.Locale == "" {
		c.Locale = DefaultLocale
	}
	if c.TimezoneID == "" {
		c.TimezoneID = DefaultTimezoneID
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	return c
}
