// Package tick provides the periodic signal that drives orchestration
// cycles. The engine subscribes once at startup and is otherwise
// passive until a tick arrives. When no broadcast transport is
// configured it falls back to a local periodic self-trigger.
package tick

import "time"

// Tick is one discrete scheduling interval.
type Tick struct {
	// Seq is the monotonically increasing sequence number.
	Seq uint64 `json:"seq"`
	// At is when the tick was emitted.
	At time.Time `json:"at"`
}

// Source emits ticks on a channel until stopped.
type Source interface {
	// Ticks returns the tick channel. The channel is closed when the
	// source stops.
	Ticks() <-chan Tick
	// Stop stops the source and closes the tick channel.
	Stop() error
}
