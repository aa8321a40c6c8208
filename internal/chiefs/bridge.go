package chiefs

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Bridge chief action tags.
const (
	// ActionFlushRelay forwards buffered cross-domain messages.
	ActionFlushRelay = "flush_relay"
)

// Bridge context keys.
const (
	keyRelayBuffer   = "relay_buffer"
	keyInboundRoute  = "inbound_route"
	keyInboundDepth  = "inbound_depth"
	keyFlushedLast   = "flushed_last_turn"
	keyRelayFailures = "relay_failures"
)

// BridgeChief relays pressure between domains. When inbound work is
// routed to another domain it defers the decision there instead of
// acting itself; its own relay buffer is flushed locally.
type BridgeChief struct {
	policies *config.PolicySet
}

// NewBridgeChief creates a bridge chief. A nil set uses built-in
// thresholds.
func NewBridgeChief(policies *config.PolicySet) *BridgeChief {
	return &BridgeChief{policies: policies}
}

func (c *BridgeChief) policy() *config.ChiefPolicy {
	if c.policies == nil {
		return nil
	}
	return c.policies.Get("bridge")
}

var _ chief.Chief = (*BridgeChief)(nil)
var _ chief.ActionSpaced = (*BridgeChief)(nil)

// Domain returns "bridge".
func (c *BridgeChief) Domain() string { return "bridge" }

// ObserveState snapshots the relay buffer and inbound routing state.
func (c *BridgeChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	return models.Observation{
		Features: map[string]any{
			keyRelayBuffer:  ctx.GetInt(keyRelayBuffer, 0),
			keyInboundRoute: ctx.GetString(keyInboundRoute, ""),
			keyInboundDepth: ctx.GetInt(keyInboundDepth, 0),
		},
	}, nil
}

// ChooseAction defers routed inbound pressure to its target domain,
// flushes the local relay buffer, or waits.
func (c *BridgeChief) ChooseAction(obs models.Observation) models.Action {
	p := c.policy()
	inboundGate := int(p.Threshold("inbound_gate", 1))
	flushGate := int(p.Threshold("flush_gate", 1))

	route, _ := obs.Features[keyInboundRoute].(string)

	switch {
	case route != "" && obs.Int(keyInboundDepth, 0) >= inboundGate:
		return models.Defer(route)
	case obs.Int(keyRelayBuffer, 0) >= flushGate:
		return models.NewAction(ActionFlushRelay)
	default:
		return models.Wait(200)
	}
}

// ApplyAction flushes the relay buffer. Defer actions never reach
// here; the conductor dispatches them to the target domain.
func (c *BridgeChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	switch action.Tag {
	case ActionFlushRelay:
		flushed := ctx.GetInt(keyRelayBuffer, 0)
		ctx.Set(keyRelayBuffer, 0)
		ctx.Set(keyFlushedLast, flushed)
		return nil

	case models.ActionWait, models.ActionDefer:
		return nil

	default:
		return fmt.Errorf("bridge chief: %w: %s", chief.ErrUnknownAction, action.Tag)
	}
}

// ReportOutcome rewards flushed messages and penalizes buffered
// backlog and relay failures.
func (c *BridgeChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	flushed := ctx.GetInt(keyFlushedLast, 0)
	buffered := ctx.GetInt(keyRelayBuffer, 0)
	failures := ctx.GetInt(keyRelayFailures, 0)

	reward := 1.0*float64(flushed) - 0.2*float64(buffered) - 2.0*float64(failures)

	return chief.Outcome{
		Reward: reward,
		Metrics: map[string]float64{
			"relay_buffer":   float64(buffered),
			"relay_failures": float64(failures),
		},
	}
}

// ActionSpace declares the bridge chief's executable vocabulary.
func (c *BridgeChief) ActionSpace() []models.Capability {
	return []models.Capability{
		{ActionTag: ActionFlushRelay, Domain: "bridge",
			Description: "Forward buffered cross-domain messages"},
	}
}
