package chiefs

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Janitor chief action tags.
const (
	// ActionSweep removes expired artifacts.
	ActionSweep = "sweep"
)

// Janitor context keys.
const (
	keyExpiredCount   = "expired_count"
	keyTicksSinceRun  = "ticks_since_sweep"
	keySweptLast      = "swept_last_turn"
	keyJanCheckpoints = "janitor_checkpoints"
)

// JanitorChief handles retention: it sweeps expired artifacts when
// they accumulate or when enough ticks have passed, and otherwise
// stays quiet.
type JanitorChief struct {
	policies *config.PolicySet
}

// NewJanitorChief creates a janitor chief. A nil set uses built-in
// thresholds.
func NewJanitorChief(policies *config.PolicySet) *JanitorChief {
	return &JanitorChief{policies: policies}
}

func (c *JanitorChief) policy() *config.ChiefPolicy {
	if c.policies == nil {
		return nil
	}
	return c.policies.Get("janitor")
}

var _ chief.Chief = (*JanitorChief)(nil)
var _ chief.ActionSpaced = (*JanitorChief)(nil)

// Domain returns "janitor".
func (c *JanitorChief) Domain() string { return "janitor" }

// ObserveState snapshots expiry pressure.
func (c *JanitorChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	return models.Observation{
		Features: map[string]any{
			keyExpiredCount:  ctx.GetInt(keyExpiredCount, 0),
			keyTicksSinceRun: ctx.GetInt(keyTicksSinceRun, 0),
		},
	}, nil
}

// ChooseAction sweeps on expiry pressure or staleness, otherwise
// checkpoints rarely and waits.
func (c *JanitorChief) ChooseAction(obs models.Observation) models.Action {
	p := c.policy()
	expiredHigh := int(p.Threshold("expired_high", 10))
	staleTicks := int(p.Threshold("stale_ticks", 60))
	checkpointTicks := int(p.Threshold("checkpoint_ticks", 300))

	since := obs.Int(keyTicksSinceRun, 0)

	switch {
	case obs.Int(keyExpiredCount, 0) >= expiredHigh:
		return models.NewAction(ActionSweep)
	case since >= staleTicks && obs.Int(keyExpiredCount, 0) > 0:
		return models.NewAction(ActionSweep)
	case since >= checkpointTicks:
		return models.NewAction(models.ActionCheckpoint)
	default:
		return models.Wait(1000)
	}
}

// ApplyAction performs the sweep or checkpoint.
func (c *JanitorChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	switch action.Tag {
	case ActionSweep:
		swept := ctx.GetInt(keyExpiredCount, 0)
		ctx.Set(keyExpiredCount, 0)
		ctx.Set(keySweptLast, swept)
		ctx.Set(keyTicksSinceRun, 0)
		return nil

	case models.ActionCheckpoint:
		ctx.AddInt(keyJanCheckpoints, 1)
		ctx.Set(keySweptLast, 0)
		ctx.Set(keyTicksSinceRun, 0)
		return nil

	case models.ActionWait, models.ActionDefer:
		return nil

	default:
		return fmt.Errorf("janitor chief: %w: %s", chief.ErrUnknownAction, action.Tag)
	}
}

// ReportOutcome rewards reclaimed artifacts and penalizes lingering
// expired entries.
func (c *JanitorChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	swept := ctx.GetInt(keySweptLast, 0)
	expired := ctx.GetInt(keyExpiredCount, 0)

	reward := 0.5*float64(swept) - 0.1*float64(expired)

	return chief.Outcome{
		Reward: reward,
		Metrics: map[string]float64{
			"expired_count": float64(expired),
		},
	}
}

// ActionSpace declares the janitor chief's executable vocabulary.
func (c *JanitorChief) ActionSpace() []models.Capability {
	return []models.Capability{
		{ActionTag: ActionSweep, Domain: "janitor",
			Description: "Remove expired artifacts"},
		{ActionTag: models.ActionCheckpoint, Domain: "janitor",
			Description: "Record a retention checkpoint"},
	}
}
