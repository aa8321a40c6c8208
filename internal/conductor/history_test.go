package conductor

import (
	"path/filepath"
	"testing"
	"time"
)

func TestCycleHistoryRoundTrip(t *testing.T) {
	h, err := OpenCycleHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer h.Close()

	summaries := []*CycleSummary{
		{Tick: 1, Duration: 12 * time.Millisecond, ActionsTaken: 2, Chiefs: []string{"queue", "plan"}},
		{Tick: 2, Duration: 8 * time.Millisecond, ActionsTaken: 1, Chiefs: []string{"queue", "plan"},
			Turns: []TurnSummary{{Chief: "queue", OK: false}}},
	}
	for _, s := range summaries {
		if err := h.Append(s); err != nil {
			t.Fatalf("append cycle %d: %v", s.Tick, err)
		}
	}

	rows, err := h.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	// Newest first.
	if rows[0].Tick != 2 || rows[1].Tick != 1 {
		t.Errorf("order = [%d %d], want [2 1]", rows[0].Tick, rows[1].Tick)
	}
	if rows[0].FailedTurns != 1 {
		t.Errorf("failed turns = %d, want 1", rows[0].FailedTurns)
	}
	if rows[1].ActionsTaken != 2 {
		t.Errorf("actions = %d, want 2", rows[1].ActionsTaken)
	}
	if len(rows[1].Chiefs) != 2 || rows[1].Chiefs[0] != "queue" {
		t.Errorf("chiefs = %v, want [queue plan]", rows[1].Chiefs)
	}
}

func TestCycleHistoryWiredIntoCycle(t *testing.T) {
	h, err := OpenCycleHistory(":memory:")
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	defer h.Close()

	var hooked []uint64
	c := New(Options{
		History: h,
		OnCycle: func(s *CycleSummary) { hooked = append(hooked, s.Tick) },
	})
	defer c.Close()

	c.Cycle(5)
	c.Cycle(6)

	rows, err := h.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if len(hooked) != 2 || hooked[0] != 5 || hooked[1] != 6 {
		t.Errorf("hook ticks = %v, want [5 6]", hooked)
	}
}
