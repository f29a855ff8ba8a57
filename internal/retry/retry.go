// Package retry re-invokes fragile operations with a delay between attempts.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
)

// DefaultAttempts and DefaultDelay match the stock retry profile.
const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

// DelayFunc returns the pause after the given failed attempt (1-based).
type DelayFunc func(attempt int) time.Duration

// Fixed waits d between every attempt.
func Fixed(d time.Duration) DelayFunc {
	return func(int) time.Duration { return d }
}

// Exponential doubles base per attempt up to max, with +/-20% jitter.
func Exponential(base, max time.Duration) DelayFunc {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt && (max <= 0 || d < max); i++ {
			d *= 2
		}
		if max > 0 && d > max {
			d = max
		}
		return applyJitter(d, 0.2)
	}
}

func applyJitter(delay time.Duration, jitter float64) time.Duration {
	if delay <= 0 || jitter <= 0 {
		return delay
	}
	base := float64(delay)
	min := base * (1 - jitter)
	max := base * (1 + jitter)
	return time.Duration(min + rand.Float64()*(max-min))
}

type options struct {
	clock     clock.Clock
	retryable func(error) bool
	onRetry   func(attempt int, err error)
}

// Option tunes Do.
type Option func(*options)

// WithClock replaces the wall clock used between attempts.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRetryable decides whether an error is worth another attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(o *options) { o.retryable = fn }
}

// OnRetry is called after each failed attempt that will be retried.
func OnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) { o.onRetry = fn }
}

// DefaultRetryable retries every failure. Per-call timeouts inside fn wrap
// context.DeadlineExceeded and are retried like anything else; only the
// caller's own context ends the loop early.
func DefaultRetryable(err error) bool {
	return err != nil
}

// Do invokes fn up to maxAttempts times, sleeping delay(attempt) between
// attempts (never after the last one). It stops early only when ctx itself is
// done or the retryable option rejects an error. When every attempt fails the returned
// error wraps both schemas.ErrRetryExhausted and the last failure.
func Do[T any](ctx context.Context, maxAttempts int, delay DelayFunc, fn func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	o := options{clock: clock.Real{}, retryable: DefaultRetryable}
	for _, opt := range opts {
		opt(&o)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultAttempts
	}
	if delay == nil {
		delay = Fixed(DefaultDelay)
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			if errors.Is(err, ctxErr) {
				return zero, err
			}
			return zero, fmt.Errorf("%w: %w", ctxErr, err)
		}
		if !o.retryable(err) {
			return zero, err
		}
		if attempt == maxAttempts {
			break
		}
		if o.onRetry != nil {
			o.onRetry(attempt, err)
		}
		if err := o.clock.Sleep(ctx, delay(attempt)); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Attempts: maxAttempts, Last: lastErr}
}

// Run is Do for operations without a result.
func Run(ctx context.Context, maxAttempts int, delay DelayFunc, fn func(ctx context.Context, attempt int) error, opts ...Option) error {
	_, err := Do(ctx, maxAttempts, delay, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, fn(ctx, attempt)
	}, opts...)
	return err
}

// ExhaustedError reports that every attempt failed.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", schemas.ErrRetryExhausted, e.Attempts, e.Last)
}

// Unwrap exposes both the sentinel and the last failure to errors.Is / errors.As.
func (e *ExhaustedError) Unwrap() []error {
	return []error{schemas.ErrRetryExhausted, e.Last}
}
