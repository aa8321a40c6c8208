package chief

import (
	"errors"
	"fmt"
)

// Stage identifies where in a chief's turn a failure occurred.
type Stage string

const (
	// StageObserve is a failure in ObserveState.
	StageObserve Stage = "observation_failure"
	// StageDecide is a failure in ChooseAction.
	StageDecide Stage = "decision_failure"
	// StageApply is a failure in ApplyAction.
	StageApply Stage = "action_failure"
	// StageReport is a failure in ReportOutcome.
	StageReport Stage = "report_failure"
)

// ErrUnknownAction is returned by action dispatch helpers when an
// action falls outside a chief's known set. The conductor logs it and
// treats the turn as a no-op rather than a failure.
var ErrUnknownAction = errors.New("unknown action")

// TurnError wraps a failure from one chief's turn. It aborts only that
// chief's turn; the cycle continues with the remaining chiefs.
type TurnError struct {
	// Chief is the registered name of the failing chief.
	Chief string
	// Stage is the contract call that failed.
	Stage Stage
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	return fmt.Sprintf("%s: chief %s: %v", e.Stage, e.Chief, e.Err)
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error { return e.Err }

// NewTurnError builds a TurnError for the given chief and stage.
func NewTurnError(name string, stage Stage, err error) *TurnError {
	return &TurnError{Chief: name, Stage: stage, Err: err}
}
