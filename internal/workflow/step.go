// Package workflow runs ordered steps against a browser session and folds
// their outcomes into a run report.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/retry"
)

// ErrNoChange is returned by an action that found the page already in the
// wanted state. The step succeeds and its wait condition is not polled.
var ErrNoChange = errors.New("no change needed")

type policyKind int

const (
	policyAbort policyKind = iota
	policySkip
	policyRetry
)

// Policy decides what a step failure does to the run.
type Policy struct {
	kind    policyKind
	retries int
}

var (
	// Abort stops the run; it is the zero value.
	Abort = Policy{kind: policyAbort}
	// SkipAndContinue records the failure and moves on.
	SkipAndContinue = Policy{kind: policySkip}
	// Retry re-runs a failing step the runner's configured number of times.
	Retry = Policy{kind: policyRetry, retries: -1}
)

// RetryUpTo re-runs a failing step up to n more times, then aborts.
func RetryUpTo(n int) Policy {
	if n < 0 {
		n = 0
	}
	return Policy{kind: policyRetry, retries: n}
}

// Attempts is the total number of times the step may run.
func (p Policy) Attempts() int {
	if p.kind != policyRetry {
		return 1
	}
	if p.retries < 0 {
		return retry.DefaultAttempts
	}
	return p.retries + 1
}

func (p Policy) String() string {
	switch p.kind {
	case policySkip:
		return "skip"
	case policyRetry:
		if p.retries < 0 {
			return "retry"
		}
		return fmt.Sprintf("retry:%d", p.retries)
	}
	return "abort"
}

// ParsePolicy reads "abort", "skip", "retry" or "retry:N".
func ParsePolicy(s string) (Policy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "abort":
		return Abort, nil
	case "skip", "skip_and_continue":
		return SkipAndContinue, nil
	case "retry":
		return Retry, nil
	}
	if rest, ok := strings.CutPrefix(s, "retry:"); ok {
		n, err := strconv.Atoi(rest)
		if err == nil && n >= 0 {
			return RetryUpTo(n), nil
		}
	}
	return Abort, fmt.Errorf("%w: unknown failure policy %q", schemas.ErrValidation, s)
}

// WaitCondition is polled after a step's action to classify its outcome.
type WaitCondition struct {
	Predicates poll.Predicates
	// Timeout of zero uses the classifier default.
	Timeout time.Duration
}

// Step is one unit of a workflow.
type Step struct {
	Name   string
	Action func(ctx context.Context, env *Env) error
	Wait   *WaitCondition

	OnFailure Policy

	// Guard runs the anomaly interceptor before and after the step.
	Guard bool
	// ReinvokeOnRecovery re-runs the step once when the post-step guard
	// recovered from an anomaly.
	ReinvokeOnRecovery bool

	// Consecutive steps sharing a non-empty group run concurrently.
	ParallelGroup string
}
