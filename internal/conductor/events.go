// Package conductor implements the tick-driven scheduler that runs
// every registered chief through its contract once per cycle.
package conductor

import (
	"time"

	"github.com/conductor-sh/conductor/pkg/models"
)

// EventType represents the type of conductor event.
type EventType string

const (
	// EventCycleStarted indicates a scheduling cycle has started.
	EventCycleStarted EventType = "cycle_started"
	// EventCycleCompleted indicates a scheduling cycle finished.
	EventCycleCompleted EventType = "cycle_completed"
	// EventTurnCompleted indicates one chief completed its full turn.
	EventTurnCompleted EventType = "turn_completed"
	// EventTurnFailed indicates one chief's turn was aborted.
	EventTurnFailed EventType = "turn_failed"
	// EventActionApplied indicates an action was dispatched and applied.
	EventActionApplied EventType = "action_applied"
	// EventUnknownAction indicates a chosen action fell outside the
	// chief's declared action space and was treated as a no-op.
	EventUnknownAction EventType = "unknown_action"
	// EventPaused indicates the conductor stopped starting new cycles.
	EventPaused EventType = "paused"
	// EventResumed indicates cycle processing resumed.
	EventResumed EventType = "resumed"
)

// ConductorEvent represents an event emitted by the conductor.
// These events feed the monitor TUI and operator tooling.
type ConductorEvent struct {
	// Type is the kind of event.
	Type EventType
	// Chief is the registered name of the related chief, if applicable.
	Chief string
	// Tick is the cycle the event belongs to.
	Tick uint64
	// Action is the related action, if applicable.
	Action models.Action
	// Reward is the turn's reported reward (for turn events).
	Reward float64
	// Message provides additional context about the event.
	Message string
	// Error contains failure details for turn_failed events.
	Error error
	// Duration is the cycle duration (for cycle_completed events).
	Duration time.Duration
	// ActionsTaken is the cycle's action tally (for cycle events).
	ActionsTaken int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
