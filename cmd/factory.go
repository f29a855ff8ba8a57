package cmd

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/session"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/engine"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"github.com/nmthangdn2000/web-automation-tools/internal/platforms"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/retry"
	"github.com/nmthangdn2000/web-automation-tools/internal/store"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

// Provisioner is a session source that can release everything it handed out.
type Provisioner interface {
	workflow.Provisioner
	Shutdown(ctx context.Context) error
}

// Components holds all the initialized services a command needs.
// This struct centralizes the lifecycle management of run dependencies.
type Components struct {
	Provisioner Provisioner
	Runner      *workflow.Runner
	Registry    *platforms.Registry
	Engine      *engine.Engine
	// Store is nil when postgres.url is empty.
	Store *store.Store
}

// Shutdown closes all components. Sessions still open are closed unless they
// were configured to stay open.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Provisioner != nil {
		// The command context may already be cancelled.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Provisioner.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during provisioner shutdown.", zap.Error(err))
		}
	}
	if c.Store != nil {
		c.Store.Close()
		logger.Debug("Database connection pool closed.")
	}
	logger.Debug("All components shut down.")
}

// ComponentFactory creates the set of components a command runs with.
// Commands take it as a parameter so tests can substitute fakes.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

// Create wires the chromedp provisioner, the workflow runner, the recipe
// registry, the optional report store and the job engine.
func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config) (*Components, error) {
	logger := observability.GetLogger()
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Recipes
	registry, err := platforms.Load(cfg.Recipes.Dir, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to load recipes: %w", err)
		return nil, initializationErr
	}
	components.Registry = registry

	// 2. Store
	if cfg.Postgres.URL != "" {
		st, err := store.Connect(ctx, cfg.Postgres.URL, logger)
		if err != nil {
			initializationErr = fmt.Errorf("failed to initialize run store: %w", err)
			return nil, initializationErr
		}
		components.Store = st
		logger.Debug("Run store initialized.")
	}

	// 3. Sessions
	components.Provisioner = session.NewProvisioner(session.NewChromeLauncher(logger), logger)

	// 4. Runner
	components.Runner = NewRunner(cfg, logger, clock.Real{})

	// 5. Engine
	var reportStore engine.Store
	if components.Store != nil {
		reportStore = components.Store
	}
	components.Engine = engine.New(cfg.Engine, logger, registry, components.Runner, components.Provisioner, reportStore)

	logger.Debug("All components initialized successfully.")
	return components, nil
}

// NewRunner builds the workflow runner from configuration.
func NewRunner(cfg *config.Config, logger *zap.Logger, clk clock.Clock) *workflow.Runner {
	return workflow.NewRunner(workflow.Options{
		Logger:      logger,
		Clock:       clk,
		Classifier:  poll.New(cfg.Poll, logger, clk),
		Interceptor: anomaly.New(cfg.Anomaly, logger, clk, anomaly.NewTerminalAlerter(logger)),
		Humanoid:    cfg.Browser.Humanoid,
		Translator:  i18n.Default(),
		RetryDelay:  retry.Fixed(cfg.Retry.Delay),
		MaxAttempts: cfg.Retry.MaxAttempts,
	})
}
