package session

import (
	"context"
	"fmt"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"go.uber.org/zap"
)

// Launcher starts or attaches to a browser and returns its first page.
type Launcher interface {
	Launch(ctx context.Context, cfg schemas.SessionConfig) (schemas.Driver, error)
	Attach(ctx context.Context, endpoint string) (schemas.Driver, error)
}

// platformDefaults are the stock Chrome locations relative to the home directory.
var platformDefaults = map[schemas.OS]struct {
	profile    []string
	executable string
}{
	schemas.OSMacOS: {
		profile:    []string{"Library", "Application Support", "Google", "Chrome", "Default"},
		executable: "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	},
	schemas.OSWindows: {
		profile:    []string{"AppData", "Local", "Google", "Chrome", "User Data", "Default"},
		executable: `C:\Program Files\Google\Chrome\Application\chrome.exe`,
	},
}

// DetectOS maps the running platform to a schemas.OS.
func DetectOS() schemas.OS {
	switch runtime.GOOS {
	case "darwin":
		return schemas.OSMacOS
	case "windows":
		return schemas.OSWindows
	case "linux":
		return schemas.OSLinux
	}
	return schemas.OS(runtime.GOOS)
}

// ResolveConfig fills launch defaults and the per-OS profile and executable.
// Platforms without a default pair must supply both explicitly.
func ResolveConfig(cfg schemas.SessionConfig, home string) (schemas.SessionConfig, error) {
	if cfg.Remote() {
		return cfg, nil
	}
	if cfg.OS == "" {
		cfg.OS = DetectOS()
	}
	cfg = cfg.WithDefaults()

	if cfg.ProfileDir != "" && cfg.ExecutablePath != "" {
		return cfg, nil
	}
	def, ok := platformDefaults[cfg.OS]
	if !ok {
		return cfg, fmt.Errorf("%w: %q has no default Chrome profile and executable; set both explicitly", schemas.ErrUnsupportedPlatform, cfg.OS)
	}
	if cfg.ProfileDir == "" {
		if home == "" {
			return cfg, fmt.Errorf("%w: cannot resolve home directory for the default profile", schemas.ErrUnsupportedPlatform)
		}
		cfg.ProfileDir = joinFor(cfg.OS, home, def.profile...)
	}
	if cfg.ExecutablePath == "" {
		cfg.ExecutablePath = def.executable
	}
	return cfg, nil
}

// joinFor joins path parts with the target platform's separator, not the host's.
func joinFor(target schemas.OS, home string, parts ...string) string {
	if target == schemas.OSWindows {
		return strings.TrimRight(home, `\/`) + `\` + strings.Join(parts, `\`)
	}
	return path.Join(append([]string{home}, parts...)...)
}

// Provisioner hands out sessions and tracks the live ones for shutdown.
type Provisioner struct {
	launcher Launcher
	logger   *zap.Logger
	homeDir  func() (string, error)

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewProvisioner creates a provisioner over the given launcher.
func NewProvisioner(launcher Launcher, logger *zap.Logger) *Provisioner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provisioner{
		launcher: launcher,
		logger:   logger.Named("provisioner"),
		homeDir:  os.UserHomeDir,
		sessions: make(map[string]*Session),
	}
}

// Provision attaches to RemoteEndpoint when set and otherwise launches a
// local browser on the resolved persistent profile.
func (p *Provisioner) Provision(ctx context.Context, cfg schemas.SessionConfig) (*Session, error) {
	var (
		driver schemas.Driver
		err    error
	)

	if cfg.Remote() {
		p.logger.Info("Attaching to running browser", zap.String("endpoint", cfg.RemoteEndpoint))
		driver, err = p.launcher.Attach(ctx, cfg.RemoteEndpoint)
		if err != nil {
			return nil, fmt.Errorf("%w: attaching to %s: %v", schemas.ErrConnection, cfg.RemoteEndpoint, err)
		}
	} else {
		home, homeErr := p.homeDir()
		if homeErr != nil {
			p.logger.Debug("Home directory unavailable", zap.Error(homeErr))
		}
		resolved, err := ResolveConfig(cfg, home)
		if err != nil {
			return nil, err
		}
		cfg = resolved

		p.logger.Info("Launching browser",
			zap.String("os", string(cfg.OS)),
			zap.String("profile_dir", cfg.ProfileDir),
			zap.Bool("headless", cfg.Headless()),
		)
		driver, err = p.launcher.Launch(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: launching %s: %v", schemas.ErrConnection, cfg.ExecutablePath, err)
		}
	}

	s := newSession(uuid.New().String(), cfg, driver, p.logger)
	s.SetOnClose(func() { p.unregister(s.id) })

	p.mu.Lock()
	p.sessions[s.id] = s
	p.mu.Unlock()

	return s, nil
}

func (p *Provisioner) unregister(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, id)
}

// Active returns the number of sessions not yet closed.
func (p *Provisioner) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

// Shutdown closes every live session concurrently.
func (p *Provisioner) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	toClose := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		toClose = append(toClose, s)
	}
	p.mu.Unlock()

	if len(toClose) == 0 {
		return nil
	}
	p.logger.Info("Closing open sessions", zap.Int("count", len(toClose)))

	var wg sync.WaitGroup
	for _, s := range toClose {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			// An unresponsive browser must not hang shutdown.
			closeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				p.logger.Warn("Error closing session during shutdown", observability.SessionID(s.id), zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
	return nil
}
