package schemas

import (
	"encoding/json"
	"time"
)

// OutcomeKind classifies an asynchronous operation's observable state.
type OutcomeKind string

const (
	OutcomeSuccess      OutcomeKind = "success"
	OutcomeWarning      OutcomeKind = "warning"
	OutcomeError        OutcomeKind = "error"
	OutcomeStillPending OutcomeKind = "still_pending"
	OutcomeTimedOut     OutcomeKind = "timed_out"
)

// PollOutcome is produced by the poll classifier.
type PollOutcome struct {
	Kind   OutcomeKind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// Terminal reports whether the outcome ends a polling loop.
func (o PollOutcome) Terminal() bool {
	return o.Kind != OutcomeStillPending
}

func Success(detail string) PollOutcome { return PollOutcome{Kind: OutcomeSuccess, Detail: detail} }
func Warning(detail string) PollOutcome { return PollOutcome{Kind: OutcomeWarning, Detail: detail} }
func Failure(detail string) PollOutcome { return PollOutcome{Kind: OutcomeError, Detail: detail} }
func TimedOut(detail string) PollOutcome {
	return PollOutcome{Kind: OutcomeTimedOut, Detail: detail}
}

// RunState is the terminal state of a workflow run.
type RunState string

const (
	RunCompleted RunState = "completed"
	RunAborted   RunState = "aborted"
)

// RunReport is the externally observable result of one workflow execution.
type RunReport struct {
	RunID       string                 `json:"run_id"`
	Workflow    string                 `json:"workflow"`
	SessionID   string                 `json:"session_id,omitempty"`
	State       RunState               `json:"state"`
	Success     bool                   `json:"success"`
	Warnings    []string               `json:"warnings,omitempty"`
	Errors      []string               `json:"errors,omitempty"`
	Payload     map[string]interface{} `json:"payload,omitempty"`
	AbortReason string                 `json:"abort_reason,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	FinishedAt  time.Time              `json:"finished_at"`
}

// ToJSON renders the report for CLI output.
func (r RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
