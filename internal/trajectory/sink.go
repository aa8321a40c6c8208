// Package trajectory records (state, action, reward, next-state)
// tuples for offline policy training. The recorder is a pure sink:
// append-only, keyed by (chief, tick), with no feedback into the
// current cycle.
package trajectory

import (
	"io"

	"github.com/conductor-sh/conductor/pkg/models"
)

// RewardFloor and RewardCeil bound recorded rewards so downstream
// learning stays numerically stable.
const (
	RewardFloor = -20.0
	RewardCeil  = 20.0
)

// ClampReward bounds a reward to [RewardFloor, RewardCeil].
func ClampReward(r float64) float64 {
	if r < RewardFloor {
		return RewardFloor
	}
	if r > RewardCeil {
		return RewardCeil
	}
	return r
}

// Sink receives trajectory steps. Implementations must be append-only;
// recorded steps never alter the cycle that produced them.
type Sink interface {
	io.Closer
	// Append records one step for the named chief at the given tick.
	Append(chief string, tick uint64, step models.TrajectoryStep) error
}

// Record is one persisted trajectory entry.
type Record struct {
	// Chief is the registered name of the recording chief.
	Chief string `json:"chief"`
	// Tick is the cycle the step was produced in.
	Tick uint64 `json:"tick"`
	// Step is the recorded tuple.
	Step models.TrajectoryStep `json:"step"`
}
