package tui

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/conductor-sh/conductor/internal/conductor"
	"github.com/conductor-sh/conductor/pkg/models"
)

func newTestMonitor() *Monitor {
	c := conductor.New(conductor.Options{})
	return NewMonitor(c, 50*time.Millisecond)
}

func TestApplyTurnCompletedUpdatesRow(t *testing.T) {
	m := newTestMonitor()

	m.applyEvent(conductor.ConductorEvent{
		Type:      conductor.EventTurnCompleted,
		Chief:     "queue",
		Tick:      7,
		Action:    models.NewAction("activate_pending"),
		Reward:    3.5,
		Timestamp: time.Now(),
	})

	row := m.row("queue")
	if row.lastAction != "activate_pending" {
		t.Errorf("lastAction = %s, want activate_pending", row.lastAction)
	}
	if row.lastReward != 3.5 {
		t.Errorf("lastReward = %v, want 3.5", row.lastReward)
	}
	if row.lastTick != 7 {
		t.Errorf("lastTick = %d, want 7", row.lastTick)
	}
	if row.failed {
		t.Error("row marked failed after successful turn")
	}
}

func TestApplyTurnFailedMarksRowAndFeed(t *testing.T) {
	m := newTestMonitor()

	m.applyEvent(conductor.ConductorEvent{
		Type:      conductor.EventTurnFailed,
		Chief:     "memory",
		Tick:      3,
		Error:     errors.New("observe blew up"),
		Timestamp: time.Now(),
	})

	if !m.row("memory").failed {
		t.Error("row not marked failed")
	}
	if len(m.feed) != 1 {
		t.Fatalf("feed len = %d, want 1", len(m.feed))
	}
	if !strings.Contains(m.feed[0], "observe blew up") {
		t.Errorf("feed entry missing error: %s", m.feed[0])
	}
}

func TestSuccessAfterFailureClearsFlag(t *testing.T) {
	m := newTestMonitor()

	m.applyEvent(conductor.ConductorEvent{Type: conductor.EventTurnFailed, Chief: "queue", Tick: 1, Error: errors.New("x"), Timestamp: time.Now()})
	m.applyEvent(conductor.ConductorEvent{Type: conductor.EventTurnCompleted, Chief: "queue", Tick: 2, Action: models.Wait(100), Timestamp: time.Now()})

	if m.row("queue").failed {
		t.Error("failed flag not cleared by subsequent successful turn")
	}
}

func TestFeedIsBounded(t *testing.T) {
	m := newTestMonitor()

	for i := 0; i < maxFeedLines+50; i++ {
		m.pushFeed(time.Now(), fmt.Sprintf("line %d", i))
	}

	if len(m.feed) != maxFeedLines {
		t.Errorf("feed len = %d, want %d", len(m.feed), maxFeedLines)
	}
	if !strings.Contains(m.feed[len(m.feed)-1], fmt.Sprintf("line %d", maxFeedLines+49)) {
		t.Error("feed did not keep the newest line")
	}
}

func TestViewShowsPausedState(t *testing.T) {
	c := conductor.New(conductor.Options{})
	m := NewMonitor(c, 50*time.Millisecond)
	m.height = 30

	c.Pause()
	if view := m.View(); !strings.Contains(view, "PAUSED") {
		t.Error("view missing PAUSED indicator while paused")
	}

	c.Resume()
	if view := m.View(); strings.Contains(view, "PAUSED") {
		t.Error("view shows PAUSED indicator after resume")
	}
}
