package models

import "fmt"

// Well-known action tags handled by the conductor itself rather than
// dispatched to a chief's ApplyAction.
const (
	// ActionWait asks the conductor to do nothing this turn. The delay
	// is advisory; the next tick re-evaluates the condition.
	ActionWait = "wait"
	// ActionDefer hands the decision to another domain's chief.
	ActionDefer = "defer"
	// ActionCheckpoint requests a durable snapshot of domain state.
	ActionCheckpoint = "checkpoint"
)

// Action parameter keys for the well-known tags.
const (
	// ParamDelayMS is the advisory wait delay in milliseconds.
	ParamDelayMS = "delay_ms"
	// ParamDomain is the target domain for a defer action.
	ParamDomain = "domain"
)

// Action is a decision produced by a chief's ChooseAction.
// A bare symbolic action is a Tag with nil Params. The lifecycle
// (pending, executing, completed, failed) is tracked by the conductor's
// action log, never by the action value itself.
type Action struct {
	// Tag identifies the action within the chief's action space.
	Tag string `json:"tag"`
	// Params carries optional action parameters.
	Params map[string]any `json:"params,omitempty"`
}

// NewAction creates a bare symbolic action with no parameters.
func NewAction(tag string) Action {
	return Action{Tag: tag}
}

// Wait returns a wait action with the given advisory delay.
func Wait(delayMS int) Action {
	return Action{Tag: ActionWait, Params: map[string]any{ParamDelayMS: delayMS}}
}

// Defer returns a defer action targeting another domain.
func Defer(domain string) Action {
	return Action{Tag: ActionDefer, Params: map[string]any{ParamDomain: domain}}
}

// IsWait returns true if the action is a wait.
func (a Action) IsWait() bool { return a.Tag == ActionWait }

// IsDefer returns true if the action defers to another domain.
func (a Action) IsDefer() bool { return a.Tag == ActionDefer }

// DelayMS returns the wait delay in milliseconds, or the fallback if
// the action carries no usable delay parameter.
func (a Action) DelayMS(fallback int) int {
	if a.Params == nil {
		return fallback
	}
	switch v := a.Params[ParamDelayMS].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// DeferDomain returns the target domain of a defer action, or "".
func (a Action) DeferDomain() string {
	if a.Params == nil {
		return ""
	}
	if d, ok := a.Params[ParamDomain].(string); ok {
		return d
	}
	return ""
}

// String renders the action for logs.
func (a Action) String() string {
	if len(a.Params) == 0 {
		return a.Tag
	}
	return fmt.Sprintf("%s%v", a.Tag, a.Params)
}

// ActionState represents the lifecycle state of a dispatched action.
type ActionState string

const (
	// ActionStatePending indicates the action has not been dispatched.
	ActionStatePending ActionState = "pending"
	// ActionStateExecuting indicates ApplyAction is in progress.
	ActionStateExecuting ActionState = "executing"
	// ActionStateCompleted indicates ApplyAction succeeded.
	ActionStateCompleted ActionState = "completed"
	// ActionStateFailed indicates ApplyAction returned an error.
	ActionStateFailed ActionState = "failed"
)

// Valid returns true if the state is a known value.
func (s ActionState) Valid() bool {
	switch s {
	case ActionStatePending, ActionStateExecuting, ActionStateCompleted, ActionStateFailed:
		return true
	default:
		return false
	}
}
