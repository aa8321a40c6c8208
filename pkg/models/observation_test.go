package models

import (
	"math"
	"testing"
)

func TestObservationFloat(t *testing.T) {
	obs := Observation{
		Domain: "queue",
		Features: map[string]any{
			"energy_level":  0.9,
			"pending_count": 5,
			"tick_total":    int64(42),
			"label":         "hot",
		},
	}

	tests := []struct {
		key      string
		fallback float64
		want     float64
	}{
		{"energy_level", 0, 0.9},
		{"pending_count", 0, 5},
		{"tick_total", 0, 42},
		{"label", 1.5, 1.5},
		{"missing", 2.5, 2.5},
	}

	for _, tt := range tests {
		if got := obs.Float(tt.key, tt.fallback); got != tt.want {
			t.Errorf("Float(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestObservationInt(t *testing.T) {
	obs := Observation{Features: map[string]any{
		"count":  7,
		"ratio":  2.0,
		"wide":   int64(9),
		"broken": "nope",
	}}

	if got := obs.Int("count", 0); got != 7 {
		t.Errorf("Int(count) = %d, want 7", got)
	}
	if got := obs.Int("ratio", 0); got != 2 {
		t.Errorf("Int(ratio) = %d, want 2", got)
	}
	if got := obs.Int("wide", 0); got != 9 {
		t.Errorf("Int(wide) = %d, want 9", got)
	}
	if got := obs.Int("broken", -1); got != -1 {
		t.Errorf("Int(broken) = %d, want -1", got)
	}
}

func TestObservationBool(t *testing.T) {
	obs := Observation{Features: map[string]any{"gate_open": true}}

	if !obs.Bool("gate_open", false) {
		t.Error("expected gate_open true")
	}
	if obs.Bool("missing", false) {
		t.Error("expected fallback false for missing feature")
	}
}

func TestTrajectoryStepValid(t *testing.T) {
	step := TrajectoryStep{Reward: 1.5}
	if !step.Valid() {
		t.Error("expected finite reward to be valid")
	}

	step.Reward = math.NaN()
	if step.Valid() {
		t.Error("expected NaN reward to be invalid")
	}

	step.Reward = math.Inf(1)
	if step.Valid() {
		t.Error("expected +Inf reward to be invalid")
	}
}
