package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/stealth"
)

// ChromeLauncher starts Chrome through chromedp.
type ChromeLauncher struct {
	logger *zap.Logger
}

// NewChromeLauncher creates the chromedp-backed launcher.
func NewChromeLauncher(logger *zap.Logger) *ChromeLauncher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeLauncher{logger: logger.Named("launcher")}
}

// AllocatorOptions builds the exec allocator flags for a resolved config.
func AllocatorOptions(cfg schemas.SessionConfig) []chromedp.ExecAllocatorOption {
	// Start from defaults, then override the ones a persistent profile cares about.
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless()),
		chromedp.Flag("hide-scrollbars", cfg.Headless()),
		chromedp.Flag("mute-audio", cfg.Headless()),
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", cfg.Locale),
		chromedp.NoSandbox,
	)
	if cfg.ExecutablePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecutablePath))
	}
	if cfg.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(cfg.ProfileDir))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		name, value, ok := parseFlag(arg)
		if !ok {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// parseFlag turns "--name=value" or "--name" into a chromedp flag.
func parseFlag(arg string) (string, interface{}, bool) {
	arg = strings.TrimLeft(strings.TrimSpace(arg), "-")
	if arg == "" {
		return "", nil, false
	}
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value, name != ""
	}
	return arg, true, true
}

// Launch starts a local browser on the configured profile.
func (l *ChromeLauncher) Launch(ctx context.Context, cfg schemas.SessionConfig) (schemas.Driver, error) {
	// The browser outlives the provisioning request, so it hangs off Background.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(cfg)...)
	d, err := l.start(ctx, allocCtx, allocCancel)
	if err != nil {
		return nil, err
	}

	persona := stealth.PersonaFor(cfg)
	err = d.run(ctx,
		emulation.SetLocaleOverride().WithLocale(cfg.Locale),
		emulation.SetTimezoneOverride(cfg.TimezoneID),
		emulation.SetUserAgentOverride(cfg.UserAgent).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			WithPlatform(persona.Platform),
		chromedp.EmulateViewport(int64(cfg.Width), int64(cfg.Height)),
	)
	if err == nil {
		err = stealth.ApplyEvasions(ctx, d, persona, l.logger)
	}
	if err != nil {
		_ = d.Close(context.Background())
		return nil, fmt.Errorf("preparing page: %w", err)
	}
	return d, nil
}

// Attach connects to a browser exposing a DevTools endpoint.
func (l *ChromeLauncher) Attach(ctx context.Context, endpoint string) (schemas.Driver, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), endpoint)
	d, err := l.start(ctx, allocCtx, allocCancel)
	if err != nil {
		return nil, err
	}
	if err := stealth.ApplyEvasions(ctx, d, stealth.Persona{}, l.logger); err != nil {
		_ = d.Close(context.Background())
		return nil, err
	}
	return d, nil
}

func (l *ChromeLauncher) start(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc) (*ChromeDriver, error) {
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(l.logger.Sugar().Debugf),
		chromedp.WithErrorf(l.logger.Sugar().Errorf),
	)

	d := newChromeDriver(browserCtx, func() {
		browserCancel()
		allocCancel()
	}, l.logger)

	// The first Run starts the browser; make it honour the caller's deadline.
	if err := d.run(ctx, chromedp.Navigate("about:blank")); err != nil {
		d.cancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	return d, nil
}
