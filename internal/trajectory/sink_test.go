package trajectory

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/conductor-sh/conductor/pkg/models"
)

func TestClampReward(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0, 0},
		{12.5, 12.5},
		{-12.5, -12.5},
		{100, RewardCeil},
		{-100, RewardFloor},
		{RewardCeil, RewardCeil},
		{RewardFloor, RewardFloor},
	}

	for _, tt := range tests {
		if got := ClampReward(tt.in); got != tt.want {
			t.Errorf("ClampReward(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMemorySinkAppendOrder(t *testing.T) {
	sink := NewMemorySink()

	for tick := uint64(1); tick <= 3; tick++ {
		step := models.TrajectoryStep{Reward: float64(tick)}
		if err := sink.Append("queue", tick, step); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records := sink.Records()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Tick != uint64(i+1) {
			t.Errorf("record %d has tick %d, want %d", i, r.Tick, i+1)
		}
	}
}

func TestMemorySinkRejectsNonFiniteReward(t *testing.T) {
	sink := NewMemorySink()

	if err := sink.Append("queue", 1, models.TrajectoryStep{Reward: math.NaN()}); err == nil {
		t.Error("expected error for NaN reward")
	}
	if sink.Len() != 0 {
		t.Errorf("expected 0 records, got %d", sink.Len())
	}
}

func TestMemorySinkByChief(t *testing.T) {
	sink := NewMemorySink()
	sink.Append("queue", 1, models.TrajectoryStep{Reward: 1})
	sink.Append("memory", 1, models.TrajectoryStep{Reward: 2})
	sink.Append("queue", 2, models.TrajectoryStep{Reward: 3})

	queue := sink.ByChief("queue")
	if len(queue) != 2 {
		t.Fatalf("expected 2 queue records, got %d", len(queue))
	}
	if queue[0].Tick != 1 || queue[1].Tick != 2 {
		t.Errorf("queue records out of order: %+v", queue)
	}
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "trajectory.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Close()

	step := models.TrajectoryStep{
		State:     map[string]any{"pending_count": 5.0},
		Action:    models.NewAction("activate_pending"),
		Reward:    2.5,
		NextState: map[string]any{"pending_count": 4.0},
		Done:      false,
		Metadata:  map[string]any{"domain": "queue"},
	}
	if err := sink.Append("queue", 7, step); err != nil {
		t.Fatalf("append: %v", err)
	}

	var got []Record
	count, err := sink.Export(func(r Record) error {
		got = append(got, r)
		return nil
	})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if count != 1 || len(got) != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	r := got[0]
	if r.Chief != "queue" || r.Tick != 7 {
		t.Errorf("unexpected key: %s/%d", r.Chief, r.Tick)
	}
	if r.Step.Reward != 2.5 {
		t.Errorf("reward = %v, want 2.5", r.Step.Reward)
	}
	if r.Step.Action.Tag != "activate_pending" {
		t.Errorf("action = %q, want activate_pending", r.Step.Action.Tag)
	}
	if r.Step.State["pending_count"] != 5.0 {
		t.Errorf("state lost: %v", r.Step.State)
	}
	if r.Step.Metadata["domain"] != "queue" {
		t.Errorf("metadata lost: %v", r.Step.Metadata)
	}
}

func TestSQLiteSinkRejectsNonFiniteReward(t *testing.T) {
	sink, err := OpenSQLite(filepath.Join(t.TempDir(), "trajectory.db"))
	if err != nil {
		t.Fatalf("open sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Append("queue", 1, models.TrajectoryStep{Reward: math.Inf(-1)}); err == nil {
		t.Error("expected error for infinite reward")
	}
}
