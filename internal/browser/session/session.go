// Package session provisions browser sessions and owns their lifecycle.
package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"go.uber.org/zap"
)

// Session is a handle on one controllable page. Only the holder of the
// session lock may drive it; the owner closes it exactly once.
type Session struct {
	id     string
	cfg    schemas.SessionConfig
	driver schemas.Driver
	logger *zap.Logger

	// sem is a one-slot semaphore; Acquire must be cancellable, which sync.Mutex is not.
	sem chan struct{}

	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
	onClose   func()
}

func newSession(id string, cfg schemas.SessionConfig, driver schemas.Driver, logger *zap.Logger) *Session {
	return &Session{
		id:     id,
		cfg:    cfg,
		driver: driver,
		logger: logger.With(observability.SessionID(id)),
		sem:    make(chan struct{}, 1),
	}
}

// New wraps an existing driver, for callers that obtain pages themselves.
func New(id string, cfg schemas.SessionConfig, driver schemas.Driver, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newSession(id, cfg, driver, logger)
}

func (s *Session) ID() string                    { return s.id }
func (s *Session) Config() schemas.SessionConfig { return s.cfg }
func (s *Session) Driver() schemas.Driver        { return s.driver }
func (s *Session) Logger() *zap.Logger           { return s.logger }

// Closed reports whether Close has run.
func (s *Session) Closed() bool { return s.closed.Load() }

// Acquire takes exclusive write rights, blocking until they are released or ctx ends.
func (s *Session) Acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the lock only if it is free.
func (s *Session) TryAcquire() bool {
	select {
	case s.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Release gives up write rights. Releasing an unheld session is a no-op.
func (s *Session) Release() {
	select {
	case <-s.sem:
	default:
	}
}

// SetOnClose registers a callback run once the session closes.
func (s *Session) SetOnClose(fn func()) {
	s.onClose = fn
}

// Close releases the browser. Later calls are no-ops returning the first
// result. With KeepOpen the browser is left running for the operator.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.cfg.KeepOpen {
			s.logger.Info("Leaving browser open as configured.")
		} else {
			s.closeErr = s.driver.Close(ctx)
			if s.closeErr != nil {
				s.logger.Warn("Browser close reported an error", zap.Error(s.closeErr))
			} else {
				s.logger.Info("Session closed.")
			}
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}
