package tick

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the broadcast subject tick signals arrive on.
const DefaultSubject = "conductor.tick.v1"

// NATSSource subscribes to a tick broadcast on NATS. Sequence numbers
// come from the payload when present, otherwise from a local counter.
type NATSSource struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	out      chan Tick
	stopOnce sync.Once

	mu      sync.Mutex
	lastSeq uint64
}

// NewNATSSource connects to the given NATS URL and subscribes to the
// tick subject. An empty subject uses DefaultSubject.
func NewNATSSource(url, subject string) (*NATSSource, error) {
	if subject == "" {
		subject = DefaultSubject
	}

	nc, err := nats.Connect(url,
		nats.Name("conductor-tick"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	s := &NATSSource{
		nc:  nc,
		out: make(chan Tick, 1),
	}

	sub, err := nc.Subscribe(subject, s.handle)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	s.sub = sub

	return s, nil
}

// handle decodes one tick message and forwards it. Out-of-order or
// duplicate sequence numbers are dropped so downstream consumers see a
// strictly increasing sequence.
func (s *NATSSource) handle(msg *nats.Msg) {
	var t Tick
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &t); err != nil {
			log.Printf("[tick] WARNING: undecodable tick payload: %v", err)
		}
	}

	s.mu.Lock()
	if t.Seq == 0 {
		t.Seq = s.lastSeq + 1
	}
	if t.Seq <= s.lastSeq {
		s.mu.Unlock()
		return
	}
	s.lastSeq = t.Seq
	s.mu.Unlock()

	if t.At.IsZero() {
		t.At = time.Now()
	}

	select {
	case s.out <- t:
	default:
		// Consumer still busy with the previous cycle; drop.
	}
}

// Ticks returns the tick channel.
func (s *NATSSource) Ticks() <-chan Tick { return s.out }

// Stop unsubscribes, drains the connection, and closes the channel.
func (s *NATSSource) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		if s.sub != nil {
			err = s.sub.Unsubscribe()
		}
		s.nc.Close()
		close(s.out)
	})
	return err
}

// Connect returns a tick source for the given configuration: a NATS
// subscription when a URL is set, otherwise a local periodic ticker.
func Connect(natsURL, subject string, interval time.Duration) (Source, error) {
	if natsURL == "" {
		return NewLocalSource(interval), nil
	}
	return NewNATSSource(natsURL, subject)
}
