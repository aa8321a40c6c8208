package tick

import (
	"sync"
	"time"
)

// LocalSource is the fallback tick source: a local periodic
// self-trigger with its own monotonic sequence.
type LocalSource struct {
	interval time.Duration
	out      chan Tick
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewLocalSource starts a local ticker emitting at the given interval.
func NewLocalSource(interval time.Duration) *LocalSource {
	s := &LocalSource{
		interval: interval,
		out:      make(chan Tick, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *LocalSource) run() {
	defer close(s.done)
	defer close(s.out)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			seq++
			// Drop the tick if the consumer is still busy with the
			// previous cycle; the next interval re-triggers it.
			select {
			case s.out <- Tick{Seq: seq, At: now}:
			default:
			}
		}
	}
}

// Ticks returns the tick channel.
func (s *LocalSource) Ticks() <-chan Tick { return s.out }

// Stop stops the ticker and closes the tick channel.
func (s *LocalSource) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
