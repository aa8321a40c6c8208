package chiefs

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Queue chief action tags.
const (
	// ActionActivatePending moves pending work into the active set.
	ActionActivatePending = "activate_pending"
	// ActionRebalance sheds load by redistributing active work.
	ActionRebalance = "rebalance"
)

// Activation strategies for ActionActivatePending.
const (
	StrategyFIFO        = "fifo"
	StrategyPriority    = "priority"
	StrategyEnergyAware = "energy_aware"
)

// Queue context keys.
const (
	keyPendingCount  = "pending_count"
	keyActiveCount   = "active_count"
	keyEnergyLevel   = "energy_level"
	keyIdleTicks     = "idle_ticks"
	keyLoadFactor    = "load_factor"
	keyLastStrategy  = "last_strategy"
	keyActivatedLast = "activated_last_turn"
	keyCheckpointAt  = "last_checkpoint_tick"
)

// QueueChief governs a work queue: it activates pending items when
// energy allows, backs off when energy is critical, rebalances under
// load, and checkpoints when idle.
type QueueChief struct {
	policies *config.PolicySet
}

// NewQueueChief creates a queue chief. A nil set uses built-in
// thresholds.
func NewQueueChief(policies *config.PolicySet) *QueueChief {
	return &QueueChief{policies: policies}
}

// policy resolves the current queue policy from the live set, so
// hot-reloaded thresholds take effect on the next decision.
func (c *QueueChief) policy() *config.ChiefPolicy {
	if c.policies == nil {
		return nil
	}
	return c.policies.Get("queue")
}

var _ chief.Chief = (*QueueChief)(nil)
var _ chief.ActionSpaced = (*QueueChief)(nil)

// Domain returns "queue".
func (c *QueueChief) Domain() string { return "queue" }

// ObserveState snapshots the queue's counters and gates.
func (c *QueueChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	return models.Observation{
		Features: map[string]any{
			keyPendingCount: ctx.GetInt(keyPendingCount, 0),
			keyActiveCount:  ctx.GetInt(keyActiveCount, 0),
			keyEnergyLevel:  ctx.GetFloat(keyEnergyLevel, 1.0),
			keyIdleTicks:    ctx.GetInt(keyIdleTicks, 0),
			keyLoadFactor:   ctx.GetFloat(keyLoadFactor, 0),
		},
	}, nil
}

// ChooseAction evaluates the queue cascade in fixed priority order and
// returns the first matching action.
func (c *QueueChief) ChooseAction(obs models.Observation) models.Action {
	energy := obs.Float(keyEnergyLevel, 1.0)
	pending := obs.Int(keyPendingCount, 0)
	load := obs.Float(keyLoadFactor, 0)
	idle := obs.Int(keyIdleTicks, 0)

	p := c.policy()
	energyLow := p.Threshold("energy_low", 0.3)
	activateGate := p.Threshold("activate_gate", 0.5)
	loadHigh := p.Threshold("load_high", 0.8)
	idleCheckpoint := int(p.Threshold("idle_checkpoint", 10))

	switch {
	case energy < energyLow:
		return models.Wait(500)
	case pending > 0 && energy >= activateGate:
		return models.Action{
			Tag:    ActionActivatePending,
			Params: map[string]any{"strategy": c.pickStrategy(pending, energy)},
		}
	case load > loadHigh:
		return models.NewAction(ActionRebalance)
	case idle >= idleCheckpoint:
		return models.NewAction(models.ActionCheckpoint)
	default:
		return models.Wait(100)
	}
}

// pickStrategy selects the activation sub-strategy from secondary
// heuristics: plenty of energy favors strict priority order, deep
// backlog favors energy-aware batching, otherwise plain FIFO.
func (c *QueueChief) pickStrategy(pending int, energy float64) string {
	p := c.policy()
	strategyHigh := p.Threshold("strategy_energy_high", 0.75)
	pendingDeep := int(p.Threshold("pending_deep", 8))

	switch {
	case energy >= strategyHigh:
		return StrategyPriority
	case pending > pendingDeep:
		return StrategyEnergyAware
	default:
		return StrategyFIFO
	}
}

// ApplyAction mutates the queue state for the chosen action.
func (c *QueueChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	switch action.Tag {
	case ActionActivatePending:
		pending := ctx.GetInt(keyPendingCount, 0)
		batch := int(c.policy().Threshold("activation_batch", 3))
		if batch < 1 {
			batch = 1
		}
		if batch > pending {
			batch = pending
		}
		ctx.Set(keyPendingCount, pending-batch)
		ctx.AddInt(keyActiveCount, batch)
		ctx.Set(keyActivatedLast, batch)
		ctx.Set(keyIdleTicks, 0)
		energy := ctx.GetFloat(keyEnergyLevel, 1.0) - 0.05*float64(batch)
		if energy < 0 {
			energy = 0
		}
		ctx.Set(keyEnergyLevel, energy)
		if s, ok := action.Params["strategy"].(string); ok {
			ctx.Set(keyLastStrategy, s)
		}
		return nil

	case ActionRebalance:
		ctx.Set(keyLoadFactor, ctx.GetFloat(keyLoadFactor, 0)/2)
		ctx.Set(keyActivatedLast, 0)
		ctx.Set(keyIdleTicks, 0)
		return nil

	case models.ActionCheckpoint:
		ctx.Set(keyCheckpointAt, ctx.GetInt(keyIdleTicks, 0))
		ctx.Set(keyActivatedLast, 0)
		ctx.Set(keyIdleTicks, 0)
		return nil

	case models.ActionWait, models.ActionDefer:
		return nil

	default:
		return fmt.Errorf("queue chief: %w: %s", chief.ErrUnknownAction, action.Tag)
	}
}

// ReportOutcome rewards activation throughput and penalizes backlog
// depth and energy exhaustion. Pure over the context state.
func (c *QueueChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	activated := ctx.GetInt(keyActivatedLast, 0)
	pending := ctx.GetInt(keyPendingCount, 0)
	energy := ctx.GetFloat(keyEnergyLevel, 1.0)

	reward := 2.0*float64(activated) - 0.4*float64(pending)
	if energy < 0.2 {
		reward -= 2.0
	}

	return chief.Outcome{
		Reward: reward,
		Metrics: map[string]float64{
			"pending_count": float64(pending),
			"energy_level":  energy,
		},
	}
}

// ActionSpace declares the queue chief's executable vocabulary.
func (c *QueueChief) ActionSpace() []models.Capability {
	return []models.Capability{
		{ActionTag: ActionActivatePending, Domain: "queue",
			Description: "Move pending items into the active set", ParamKeys: []string{"strategy"}},
		{ActionTag: ActionRebalance, Domain: "queue",
			Description: "Redistribute active work to shed load"},
		{ActionTag: models.ActionCheckpoint, Domain: "queue",
			Description: "Snapshot queue state after an idle stretch"},
	}
}
