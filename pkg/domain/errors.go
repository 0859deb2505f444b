package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrToolFailure marks a search or tool call that could not complete.
	// Steps degrade on it; it never aborts a run.
	ErrToolFailure = errors.New("tool failure")

	// ErrParse marks model output that does not follow the expected structure.
	ErrParse = errors.New("parse failure")

	// ErrBudgetExhausted marks a normal termination caused by a ceiling.
	ErrBudgetExhausted = errors.New("budget exhausted")

	// ErrStepCeiling is reported when the absolute step ceiling stopped a run.
	ErrStepCeiling = fmt.Errorf("%w: step ceiling reached", ErrBudgetExhausted)

	// ErrRunInterrupted is returned when a run was cancelled or a step failed unexpectedly.
	ErrRunInterrupted = errors.New("run interrupted")

	// ErrPersistence marks a failed write. It is surfaced as a warning.
	ErrPersistence = errors.New("persistence failure")

	// ErrBackend is returned by generation collaborators on transport or auth failure.
	ErrBackend = errors.New("generation backend error")

	// ErrInvariant is returned by Apply when an update would corrupt the snapshot.
	ErrInvariant = errors.New("state invariant violated")

	// ErrRecordNotFound is returned when a persisted record does not exist.
	ErrRecordNotFound = errors.New("record not found")

	// ErrRunNotFound is returned when a run checkpoint cannot be found in the store.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunTerminal is returned when resuming a run that already finished.
	ErrRunTerminal = errors.New("run already terminal")
)

// ParseError describes malformed structured output.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failure: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

// StepError wraps an unexpected failure raised by a step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
