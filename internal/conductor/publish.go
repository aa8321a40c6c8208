package conductor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultCycleSubject is the broadcast subject for cycle summaries.
const DefaultCycleSubject = "conductor.cycle.v1"

// cyclePayload is the wire form of a published cycle summary.
type cyclePayload struct {
	Tick         uint64   `json:"tick"`
	DurationMS   float64  `json:"duration_ms"`
	ActionsTaken int      `json:"actions_taken"`
	Chiefs       []string `json:"chiefs"`
	FailedTurns  int      `json:"failed_turns"`
}

// CyclePublisher broadcasts cycle summaries over NATS so external
// observers can follow scheduling activity without polling the process.
type CyclePublisher struct {
	nc      *nats.Conn
	subject string
}

// NewCyclePublisher connects to NATS and prepares to publish on the
// given subject. An empty subject uses DefaultCycleSubject.
func NewCyclePublisher(url, subject string) (*CyclePublisher, error) {
	if subject == "" {
		subject = DefaultCycleSubject
	}
	nc, err := nats.Connect(url,
		nats.Name("conductor-cycle-publisher"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &CyclePublisher{nc: nc, subject: subject}, nil
}

// Publish sends one summary. Failures are logged, never propagated;
// telemetry must not disturb the cycle that produced it.
func (p *CyclePublisher) Publish(s *CycleSummary) {
	data, err := json.Marshal(cyclePayload{
		Tick:         s.Tick,
		DurationMS:   float64(s.Duration) / float64(time.Millisecond),
		ActionsTaken: s.ActionsTaken,
		Chiefs:       s.Chiefs,
		FailedTurns:  len(s.FailedTurns()),
	})
	if err != nil {
		debugLog("[publisher] encode cycle %d: %v", s.Tick, err)
		return
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		debugLog("[publisher] publish cycle %d: %v", s.Tick, err)
	}
}

// Close drains the connection.
func (p *CyclePublisher) Close() {
	p.nc.Close()
}
