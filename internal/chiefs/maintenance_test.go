package chiefs

import (
	"testing"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/pkg/models"
)

func TestMemoryChiefCascade(t *testing.T) {
	c := NewMemoryChief(nil)

	tests := []struct {
		name     string
		features map[string]any
		wantTag  string
	}{
		{"deep chain consolidates first", map[string]any{"chain_depth": 20, "fragment_count": 100}, ActionConsolidate},
		{"fragment sprawl compacts", map[string]any{"chain_depth": 3, "fragment_count": 60}, ActionCompactFragments},
		{"long idle checkpoints", map[string]any{"mem_idle_ticks": 25}, models.ActionCheckpoint},
		{"healthy store waits", map[string]any{"chain_depth": 2, "fragment_count": 5}, models.ActionWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := c.ChooseAction(models.Observation{Features: tt.features})
			if action.Tag != tt.wantTag {
				t.Errorf("action = %s, want %s", action.Tag, tt.wantTag)
			}
		})
	}
}

func TestMemoryChiefConsolidate(t *testing.T) {
	c := NewMemoryChief(nil)
	ctx := chief.NewDomainContext("memory")
	ctx.Set("chain_depth", 20)

	if err := c.ApplyAction(models.NewAction(ActionConsolidate), ctx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := ctx.GetInt("chain_depth", -1); got != 1 {
		t.Errorf("chain_depth = %d, want 1", got)
	}
	if got := ctx.GetInt("consolidations", 0); got != 1 {
		t.Errorf("consolidations = %d, want 1", got)
	}
}

func TestBridgeChiefCascade(t *testing.T) {
	c := NewBridgeChief(nil)

	tests := []struct {
		name       string
		features   map[string]any
		wantTag    string
		wantTarget string
	}{
		{
			"routed inbound pressure defers",
			map[string]any{"inbound_route": "queue", "inbound_depth": 3},
			models.ActionDefer, "queue",
		},
		{
			"buffered relays flush",
			map[string]any{"relay_buffer": 4},
			ActionFlushRelay, "",
		},
		{
			"empty bridge waits",
			map[string]any{},
			models.ActionWait, "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := c.ChooseAction(models.Observation{Features: tt.features})
			if action.Tag != tt.wantTag {
				t.Fatalf("action = %s, want %s", action.Tag, tt.wantTag)
			}
			if tt.wantTarget != "" && action.DeferDomain() != tt.wantTarget {
				t.Errorf("defer target = %s, want %s", action.DeferDomain(), tt.wantTarget)
			}
		})
	}
}

func TestBridgeChiefFlush(t *testing.T) {
	c := NewBridgeChief(nil)
	ctx := chief.NewDomainContext("bridge")
	ctx.Set("relay_buffer", 7)

	if err := c.ApplyAction(models.NewAction(ActionFlushRelay), ctx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := ctx.GetInt("relay_buffer", -1); got != 0 {
		t.Errorf("relay_buffer = %d, want 0", got)
	}

	outcome := c.ReportOutcome(ctx)
	if outcome.Reward != 7.0 {
		t.Errorf("reward = %v, want 7.0 for 7 flushed messages", outcome.Reward)
	}
}

func TestJanitorChiefCascade(t *testing.T) {
	c := NewJanitorChief(nil)

	tests := []struct {
		name     string
		features map[string]any
		wantTag  string
	}{
		{"expiry pressure sweeps", map[string]any{"expired_count": 12}, ActionSweep},
		{"stale with any expiry sweeps", map[string]any{"expired_count": 1, "ticks_since_sweep": 70}, ActionSweep},
		{"very stale with nothing expired checkpoints", map[string]any{"ticks_since_sweep": 400}, models.ActionCheckpoint},
		{"quiet janitor waits", map[string]any{"expired_count": 1, "ticks_since_sweep": 5}, models.ActionWait},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action := c.ChooseAction(models.Observation{Features: tt.features})
			if action.Tag != tt.wantTag {
				t.Errorf("action = %s, want %s", action.Tag, tt.wantTag)
			}
		})
	}
}

func TestPolicyThresholdOverride(t *testing.T) {
	policies := config.NewPolicySet()
	policies.Put(&config.ChiefPolicy{
		Domain:     "queue",
		Thresholds: map[string]float64{"energy_low": 0.6},
	})
	c := NewQueueChief(policies)

	// 0.5 is healthy under the defaults but critical under this policy.
	action := c.ChooseAction(obsWith(map[string]any{"pending_count": 5, "energy_level": 0.5}))
	if !action.IsWait() {
		t.Errorf("action = %s, want wait under raised energy_low threshold", action)
	}
}

func TestPolicyReloadVisibleToChief(t *testing.T) {
	policies := config.NewPolicySet()
	c := NewQueueChief(policies)

	obs := obsWith(map[string]any{"pending_count": 5, "energy_level": 0.5})

	// Under the default energy_low of 0.3 the chief activates.
	if action := c.ChooseAction(obs); action.Tag != ActionActivatePending {
		t.Fatalf("action = %s, want %s under default thresholds", action.Tag, ActionActivatePending)
	}

	// A reload swaps the whole set contents with fresh policy values;
	// the same chief must pick them up on its next decision.
	policies.ReplaceAll(map[string]*config.ChiefPolicy{
		"queue": {
			Domain:     "queue",
			Thresholds: map[string]float64{"energy_low": 0.6},
		},
	})
	if action := c.ChooseAction(obs); !action.IsWait() {
		t.Errorf("action = %s, want wait after reload raised energy_low", action)
	}

	// Reloading away the queue policy falls back to the defaults.
	policies.ReplaceAll(map[string]*config.ChiefPolicy{})
	if action := c.ChooseAction(obs); action.Tag != ActionActivatePending {
		t.Errorf("action = %s, want %s after policy removal", action.Tag, ActionActivatePending)
	}
}

func TestMaintenanceChiefsIdempotentReward(t *testing.T) {
	chiefsUnderTest := []chief.Chief{
		NewMemoryChief(nil),
		NewBridgeChief(nil),
		NewJanitorChief(nil),
	}

	for _, c := range chiefsUnderTest {
		ctx := chief.NewDomainContext(c.Domain())
		ctx.Set("chain_depth", 4)
		ctx.Set("relay_buffer", 3)
		ctx.Set("expired_count", 2)

		first := c.ReportOutcome(ctx)
		second := c.ReportOutcome(ctx)
		if first.Reward != second.Reward {
			t.Errorf("%s reward not idempotent: %v vs %v", c.Domain(), first.Reward, second.Reward)
		}
	}
}
