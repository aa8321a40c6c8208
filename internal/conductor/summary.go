package conductor

import (
	"time"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/pkg/models"
)

// TurnSummary records the outcome of one chief's turn within a cycle.
type TurnSummary struct {
	// Chief is the registered name of the chief.
	Chief string
	// OK reports whether the full turn completed.
	OK bool
	// Skipped reports whether the turn was skipped by policy
	// (disabled chief or off-cadence tick).
	Skipped bool
	// Action is the chosen action for completed turns.
	Action models.Action
	// Dispatched reports whether the action reached ApplyAction. Waits
	// and unknown actions complete the turn without dispatching.
	Dispatched bool
	// Reward is the clamped reward for completed turns.
	Reward float64
	// Err is the turn failure, if any.
	Err *chief.TurnError
}

// CycleSummary summarizes one full scheduling cycle across all chiefs.
type CycleSummary struct {
	// Tick is the cycle's tick sequence number.
	Tick uint64
	// Duration is how long the full cycle took.
	Duration time.Duration
	// ActionsTaken counts actions applied this cycle. Failed turns
	// contribute zero.
	ActionsTaken int
	// Chiefs lists the domains that ran, in execution order.
	Chiefs []string
	// Turns holds per-chief outcomes in execution order.
	Turns []TurnSummary
}

// FailedTurns returns the summaries of turns that were aborted.
func (s *CycleSummary) FailedTurns() []TurnSummary {
	var failed []TurnSummary
	for _, t := range s.Turns {
		if !t.OK && !t.Skipped {
			failed = append(failed, t)
		}
	}
	return failed
}
