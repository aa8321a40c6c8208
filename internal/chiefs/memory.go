package chiefs

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Memory chief action tags.
const (
	// ActionConsolidate collapses a deep revision chain into one
	// snapshot.
	ActionConsolidate = "consolidate"
	// ActionCompactFragments merges small fragments into larger units.
	ActionCompactFragments = "compact_fragments"
)

// Memory context keys.
const (
	keyChainDepth      = "chain_depth"
	keyFragmentCount   = "fragment_count"
	keyDirtyRatio      = "dirty_ratio"
	keyConsolidations  = "consolidations"
	keyCompactedLast   = "compacted_last_turn"
	keyMemIdleTicks    = "mem_idle_ticks"
	keyMemCheckpointAt = "mem_last_checkpoint"
)

// MemoryChief guards structural health of a memory store: revision
// chains that grow too deep get consolidated, fragment sprawl gets
// compacted, and quiet periods trigger checkpoints.
type MemoryChief struct {
	policies *config.PolicySet
}

// NewMemoryChief creates a memory chief. A nil set uses built-in
// thresholds.
func NewMemoryChief(policies *config.PolicySet) *MemoryChief {
	return &MemoryChief{policies: policies}
}

func (c *MemoryChief) policy() *config.ChiefPolicy {
	if c.policies == nil {
		return nil
	}
	return c.policies.Get("memory")
}

var _ chief.Chief = (*MemoryChief)(nil)
var _ chief.ActionSpaced = (*MemoryChief)(nil)

// Domain returns "memory".
func (c *MemoryChief) Domain() string { return "memory" }

// ObserveState snapshots structural-health gauges.
func (c *MemoryChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	return models.Observation{
		Features: map[string]any{
			keyChainDepth:    ctx.GetInt(keyChainDepth, 0),
			keyFragmentCount: ctx.GetInt(keyFragmentCount, 0),
			keyDirtyRatio:    ctx.GetFloat(keyDirtyRatio, 0),
			keyMemIdleTicks:  ctx.GetInt(keyMemIdleTicks, 0),
		},
	}, nil
}

// ChooseAction puts structural health ahead of everything else:
// consolidation first, then fragment pressure, then checkpoints.
func (c *MemoryChief) ChooseAction(obs models.Observation) models.Action {
	p := c.policy()
	chainLimit := int(p.Threshold("chain_depth_limit", 12))
	fragmentHigh := int(p.Threshold("fragment_high", 50))
	idleCheckpoint := int(p.Threshold("idle_checkpoint", 20))

	switch {
	case obs.Int(keyChainDepth, 0) > chainLimit:
		return models.NewAction(ActionConsolidate)
	case obs.Int(keyFragmentCount, 0) > fragmentHigh:
		return models.NewAction(ActionCompactFragments)
	case obs.Int(keyMemIdleTicks, 0) >= idleCheckpoint:
		return models.NewAction(models.ActionCheckpoint)
	default:
		return models.Wait(250)
	}
}

// ApplyAction performs the chosen maintenance operation.
func (c *MemoryChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	switch action.Tag {
	case ActionConsolidate:
		ctx.Set(keyChainDepth, 1)
		ctx.AddInt(keyConsolidations, 1)
		ctx.Set(keyCompactedLast, 0)
		ctx.Set(keyMemIdleTicks, 0)
		return nil

	case ActionCompactFragments:
		fragments := ctx.GetInt(keyFragmentCount, 0)
		merged := fragments / 2
		ctx.Set(keyFragmentCount, fragments-merged)
		ctx.Set(keyCompactedLast, merged)
		ctx.Set(keyMemIdleTicks, 0)
		return nil

	case models.ActionCheckpoint:
		ctx.Set(keyMemCheckpointAt, ctx.GetInt(keyMemIdleTicks, 0))
		ctx.Set(keyCompactedLast, 0)
		ctx.Set(keyMemIdleTicks, 0)
		return nil

	case models.ActionWait, models.ActionDefer:
		return nil

	default:
		return fmt.Errorf("memory chief: %w: %s", chief.ErrUnknownAction, action.Tag)
	}
}

// ReportOutcome rewards structural improvement and penalizes chain
// depth and fragment sprawl that remain after the turn.
func (c *MemoryChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	chain := ctx.GetInt(keyChainDepth, 0)
	fragments := ctx.GetInt(keyFragmentCount, 0)
	compacted := ctx.GetInt(keyCompactedLast, 0)

	reward := 0.5*float64(compacted) - 0.3*float64(chain) - 0.05*float64(fragments)

	return chief.Outcome{
		Reward: reward,
		Metrics: map[string]float64{
			"chain_depth":    float64(chain),
			"fragment_count": float64(fragments),
		},
	}
}

// ActionSpace declares the memory chief's executable vocabulary.
func (c *MemoryChief) ActionSpace() []models.Capability {
	return []models.Capability{
		{ActionTag: ActionConsolidate, Domain: "memory",
			Description: "Collapse a deep revision chain into one snapshot"},
		{ActionTag: ActionCompactFragments, Domain: "memory",
			Description: "Merge small fragments into larger units"},
		{ActionTag: models.ActionCheckpoint, Domain: "memory",
			Description: "Snapshot memory state after an idle stretch"},
	}
}
