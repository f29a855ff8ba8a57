package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// sessionFlags are the per-invocation overrides of the configured session.
type sessionFlags struct {
	os          string
	profileDir  string
	executable  string
	remote      string
	showBrowser bool
	keepOpen    bool
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.os, "os", "", "host platform of the browser profile (macos, windows, linux)")
	fs.StringVar(&f.profileDir, "profile", "", "persistent browser profile directory")
	fs.StringVar(&f.executable, "exe", "", "path to the Chrome executable")
	fs.StringVar(&f.remote, "remote", "", "attach to a running browser at this DevTools endpoint")
	fs.BoolVar(&f.showBrowser, "show-browser", false, "run with a visible window")
	fs.BoolVar(&f.keepOpen, "keep-open", false, "leave the browser open when the run ends")
}

// apply overlays the flags the user actually set onto base.
func (f *sessionFlags) apply(cmd *cobra.Command, base schemas.SessionConfig) schemas.SessionConfig {
	fs := cmd.Flags()
	if fs.Changed("os") {
		base.OS = schemas.OS(strings.ToLower(f.os))
	}
	if fs.Changed("profile") {
		base.ProfileDir = f.profileDir
	}
	if fs.Changed("exe") {
		base.ExecutablePath = f.executable
	}
	if fs.Changed("remote") {
		base.RemoteEndpoint = f.remote
	}
	if fs.Changed("show-browser") {
		base.ShowBrowser = f.showBrowser
	}
	if fs.Changed("keep-open") {
		base.KeepOpen = f.keepOpen
	}
	return base
}

// mergeSession fills the fields override leaves empty from base.
func mergeSession(base, override schemas.SessionConfig) schemas.SessionConfig {
	out := override
	if out.OS == "" {
		out.OS = base.OS
	}
	if out.ProfileDir == "" {
		out.ProfileDir = base.ProfileDir
	}
	if out.ExecutablePath == "" {
		out.ExecutablePath = base.ExecutablePath
	}
	if out.RemoteEndpoint == "" {
		out.RemoteEndpoint = base.RemoteEndpoint
	}
	if out.Width == 0 {
		out.Width = base.Width
	}
	if out.Height == 0 {
		out.Height = base.Height
	}
	if out.Locale == "" {
		out.Locale = base.Locale
	}
	if out.TimezoneID == "" {
		out.TimezoneID = base.TimezoneID
	}
	if out.UserAgent == "" {
		out.UserAgent = base.UserAgent
	}
	if len(out.Args) == 0 {
		out.Args = base.Args
	}
	out.ShowBrowser = out.ShowBrowser || base.ShowBrowser
	out.KeepOpen = out.KeepOpen || base.KeepOpen
	return out
}

// parseParams merges a YAML params file with repeated key=value flags; flags win.
func parseParams(file string, pairs []string) (map[string]interface{}, error) {
	params := map[string]interface{}{}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading params file: %w", err)
		}
		if err := yaml.Unmarshal(data, &params); err != nil {
			return nil, fmt.Errorf("%w: params file %s: %v", schemas.ErrValidation, file, err)
		}
		if params == nil {
			params = map[string]interface{}{}
		}
	}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: --param %q is not key=value", schemas.ErrValidation, pair)
		}
		params[key] = value
	}
	return params, nil
}
