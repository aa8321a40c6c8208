package trajectory

import (
	"fmt"
	"sync"

	"github.com/conductor-sh/conductor/pkg/models"
)

// MemorySink keeps trajectory records in memory. Used in tests and by
// the monitor TUI for recent-reward display.
type MemorySink struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append records one step.
func (s *MemorySink) Append(chief string, tick uint64, step models.TrajectoryStep) error {
	if !step.Valid() {
		return fmt.Errorf("reject step for chief %s at tick %d: reward is not finite", chief, tick)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Chief: chief, Tick: tick, Step: step})
	return nil
}

// Close is a no-op for the memory sink.
func (s *MemorySink) Close() error { return nil }

// Records returns a copy of all recorded entries in append order.
func (s *MemorySink) Records() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// ByChief returns the records for one chief in append order.
func (s *MemorySink) ByChief(chief string) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, r := range s.records {
		if r.Chief == chief {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of recorded entries.
func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
