package schemas

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy shared by every component. Callers match with errors.Is.
var (
	// ErrConnection means no session could be obtained (remote endpoint unreachable, launch failed).
	ErrConnection = errors.New("connection error")
	// ErrUnsupportedPlatform means no default session configuration resolves for the OS.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrElementNotInteractable means a target never became actionable within its wait window.
	ErrElementNotInteractable = errors.New("element not interactable")
	// ErrAnomalyUnresolved means an interstitial persisted past its bound.
	ErrAnomalyUnresolved = errors.New("anomaly unresolved")
	// ErrValidation means the platform (or the caller's input) rejected the content.
	ErrValidation = errors.New("validation error")
	// ErrRetryExhausted means every allowed attempt failed.
	ErrRetryExhausted = errors.New("retry exhausted")
	// ErrTimedOut means a poll deadline elapsed without a terminal classification.
	ErrTimedOut = errors.New("timed out")
)

// ErrInvalidInterval is returned for malformed action intervals. It is a validation error.
var ErrInvalidInterval = fmt.Errorf("%w: invalid action interval", ErrValidation)

// StepError attributes a failure to a named workflow step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrWaitTimeout is returned by WaitFor. It matches ErrElementNotInteractable for
// visible/attached waits and ErrTimedOut for the rest.
type ErrWaitTimeout struct {
	Selector string
	State    ElementState
	Timeout  time.Duration
}

func (e ErrWaitTimeout) Error() string {
	return fmt.Sprintf("waiting for %q to be %s: exceeded %s", e.Selector, e.State, e.Timeout)
}

func (e ErrWaitTimeout) Is(target error) bool {
	switch target {
	case ErrElementNotInteractable:
		return e.State == StateVisible || e.State == StateAttached
	case ErrTimedOut:
		return true
	}
	return false
}
