package models

import "math"

// TrajectoryStep is one logged (state, action, reward, next-state)
// tuple used for offline policy training. Steps are ephemeral in the
// engine; sinks decide whether to persist them.
type TrajectoryStep struct {
	// State is the feature map observed before the action.
	State map[string]any `json:"state"`
	// Action is the decision that was applied.
	Action Action `json:"action"`
	// Reward is the scalar outcome signal. Must be finite.
	Reward float64 `json:"reward"`
	// NextState is the feature map observed after the action.
	NextState map[string]any `json:"next_state"`
	// Done marks terminal transitions for episodic training.
	Done bool `json:"done"`
	// Metadata carries sink-specific annotations (domain, tick, etc).
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Valid returns true if the reward is a finite real number.
func (s TrajectoryStep) Valid() bool {
	return !math.IsNaN(s.Reward) && !math.IsInf(s.Reward, 0)
}
