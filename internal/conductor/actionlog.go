package conductor

import (
	"sync"
	"time"

	"github.com/conductor-sh/conductor/pkg/models"
)

// ActionRecord tracks the lifecycle of one dispatched action. The
// lifecycle lives here, not on the action value itself.
type ActionRecord struct {
	// Chief is the registered name of the acting chief.
	Chief string
	// Tick is the cycle the action was chosen in.
	Tick uint64
	// Action is the dispatched action.
	Action models.Action
	// State is the current lifecycle state.
	State models.ActionState
	// Error holds the failure message for failed actions.
	Error string
	// StartedAt is when ApplyAction began. Zero for actions that
	// completed without executing, such as waits.
	StartedAt time.Time
	// FinishedAt is when the action reached a terminal state.
	FinishedAt time.Time
}

// ActionLog is a bounded, thread-safe log of recent action records.
// Old records are evicted once capacity is reached.
type ActionLog struct {
	mu      sync.RWMutex
	records []ActionRecord
	cap     int
}

// NewActionLog creates a log holding up to capacity records.
func NewActionLog(capacity int) *ActionLog {
	if capacity <= 0 {
		capacity = 256
	}
	return &ActionLog{cap: capacity}
}

// Begin appends a record in the pending state and returns its index.
func (l *ActionLog) Begin(chiefName string, tick uint64, action models.Action) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) >= l.cap {
		// Evict the oldest half to amortize copying.
		keep := l.cap / 2
		l.records = append(l.records[:0], l.records[len(l.records)-keep:]...)
	}
	l.records = append(l.records, ActionRecord{
		Chief:  chiefName,
		Tick:   tick,
		Action: action,
		State:  models.ActionStatePending,
	})
	return len(l.records) - 1
}

// Start marks the record at idx as executing.
func (l *ActionLog) Start(idx int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx < 0 || idx >= len(l.records) {
		return
	}
	l.records[idx].State = models.ActionStateExecuting
	l.records[idx].StartedAt = time.Now()
}

// Finish moves the record at idx to a terminal state.
func (l *ActionLog) Finish(idx int, state models.ActionState, errMsg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx < 0 || idx >= len(l.records) {
		return
	}
	l.records[idx].State = state
	l.records[idx].Error = errMsg
	l.records[idx].FinishedAt = time.Now()
}

// Recent returns up to n most recent records, newest last.
func (l *ActionLog) Recent(n int) []ActionRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]ActionRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Len returns the number of retained records.
func (l *ActionLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
