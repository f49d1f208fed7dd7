// Package apperrors defines the error taxonomy shared by the dispatcher and
// worker processes (spec §7). Each component surfaces only its own terminal
// outcomes; infrastructure blips never propagate to the user.
package apperrors

import "fmt"

// TransientInfraError wraps a broker/store/SMS/LLM/blob failure that the
// caller should retry with backoff. Never returned to an HTTP or SMS caller
// directly.
type TransientInfraError struct {
	Op  string
	Err error
}

func (e *TransientInfraError) Error() string {
	return fmt.Sprintf("transient infra error during %s: %v", e.Op, e.Err)
}

func (e *TransientInfraError) Unwrap() error { return e.Err }

// TaskExecutionError is a worker form-loop failure tied to a specific page
// or action. Retriable up to MAX_RETRIES; becomes a terminal failure after.
type TaskExecutionError struct {
	Step string
	Err  error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task execution failed at %s: %v", e.Step, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// NeedsApproval is not an error condition but a suspended-execution signal:
// the worker cannot proceed without a human answer.
type NeedsApproval struct {
	Question string
}

func (e *NeedsApproval) Error() string {
	return fmt.Sprintf("needs approval: %s", e.Question)
}

// ValidationError is a malformed payload, unknown enum value, or unknown
// application_id. The caller should drop it to a dead-letter log, not retry.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// SecurityError is a signature mismatch, decryption failure, or bad API key.
// Hard reject; never retried.
type SecurityError struct {
	Msg string
}

func (e *SecurityError) Error() string { return e.Msg }

// BudgetExceeded means the dispatcher-level attempts counter is exhausted.
// Terminal: the Application moves to ERROR without re-publishing.
type BudgetExceeded struct {
	Attempts int
	Max      int
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("retry budget exceeded: %d/%d attempts used", e.Attempts, e.Max)
}

// ErrNotFound is returned when a store lookup finds no matching row.
var ErrNotFound = fmt.Errorf("not found")

// ErrForbiddenTransition is returned when a state transition is rejected by
// the state machine.
var ErrForbiddenTransition = fmt.Errorf("transition not allowed")

// ErrActiveApplicationExists signals that I2 already holds — the dispatcher
// must reuse the existing Application rather than create a new one.
var ErrActiveApplicationExists = fmt.Errorf("an active application already exists")

// ErrAlreadyTerminal signals that a redelivered message targeted an
// Application already in a terminal state (spec P3): the caller must treat
// this as a no-op — log and drop — never re-notify or re-transition.
var ErrAlreadyTerminal = fmt.Errorf("application already in a terminal state")
