package chiefs

import (
	"testing"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/planstore"
	"github.com/conductor-sh/conductor/internal/plantree"
	"github.com/conductor-sh/conductor/pkg/models"
)

func newPlanChief(t *testing.T) (*PlanChief, *chief.DomainContext) {
	t.Helper()
	engine := plantree.NewEngine(planstore.NewMemoryStore(), plantree.Config{Parallelism: 8})
	return NewPlanChief(engine, nil), chief.NewDomainContext("plan")
}

// turn drives one observe-decide-act round, the way the conductor does.
func turn(t *testing.T, c *PlanChief, ctx *chief.DomainContext) models.Action {
	t.Helper()
	obs, err := c.ObserveState(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	action := c.ChooseAction(obs)
	if err := c.ApplyAction(action, ctx); err != nil {
		t.Fatalf("apply %s: %v", action, err)
	}
	return action
}

func TestPlanChiefGoalToCompletion(t *testing.T) {
	c, ctx := newPlanChief(t)

	QueueGoal(ctx, map[string]any{
		"goal": "ship release",
		"steps": []any{
			map[string]any{"label": "build", "op": "build", "priority": 0.9},
			map[string]any{"label": "publish", "op": "publish", "priority": 0.5},
		},
	})

	// Turn 1: drain the goal queue into a tree.
	if action := turn(t, c, ctx); action.Tag != ActionCreateTree {
		t.Fatalf("turn 1 action = %s, want %s", action.Tag, ActionCreateTree)
	}

	// Turn 2: expand the root.
	if action := turn(t, c, ctx); action.Tag != ActionRunCycle {
		t.Fatalf("turn 2 action = %s, want %s", action.Tag, ActionRunCycle)
	}
	// Turn 3: both leaves execute and the tree settles.
	turn(t, c, ctx)

	if got := ctx.GetInt("steps_executed", 0); got != 2 {
		t.Errorf("steps_executed = %d, want 2", got)
	}
	if got := ctx.GetInt("trees_completed_last_turn", 0); got != 1 {
		t.Errorf("trees completed = %d, want 1", got)
	}

	trees, err := c.Engine().Store().ListTreesByStatus(models.TreeStatusCompleted)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(trees) != 1 || trees[0].Goal != "ship release" {
		t.Fatalf("completed trees = %+v", trees)
	}
	if trees[0].CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	// Nothing left to do.
	obs, err := c.ObserveState(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	if action := c.ChooseAction(obs); !action.IsWait() {
		t.Errorf("idle action = %s, want wait", action)
	}
}

func TestPlanChiefPlainStringGoal(t *testing.T) {
	c, ctx := newPlanChief(t)

	QueueGoal(ctx, "demo")
	turn(t, c, ctx) // create_tree
	turn(t, c, ctx) // run_cycle: root has no steps, skips to leaf
	turn(t, c, ctx) // run_cycle: converted leaf executes

	trees, err := c.Engine().Store().ListTreesByStatus(models.TreeStatusCompleted)
	if err != nil {
		t.Fatalf("list completed: %v", err)
	}
	if len(trees) != 1 || trees[0].Goal != "demo" {
		t.Fatalf("completed trees = %+v", trees)
	}
}

func TestPlanChiefExpandNode(t *testing.T) {
	c, ctx := newPlanChief(t)

	result := c.ExpandNode("n1", map[string]any{
		"steps": []any{
			map[string]any{"label": "outer", "steps": []any{
				map[string]any{"label": "inner", "op": "x"},
			}},
			map[string]any{"label": "leaf", "op": "y", "priority": 0.7},
		},
	}, ctx)

	if result.Kind != chief.ExpandOK {
		t.Fatalf("expand kind = %v, want ok", result.Kind)
	}
	if len(result.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(result.Children))
	}
	if result.Children[0].NodeType != models.NodeTypeComposite {
		t.Error("nested steps should produce a composite child")
	}
	if result.Children[1].NodeType != models.NodeTypeLeaf {
		t.Error("flat step should produce a leaf child")
	}
	if result.Children[1].Priority != 0.7 {
		t.Errorf("declared priority = %v, want 0.7", result.Children[1].Priority)
	}

	skip := c.ExpandNode("n2", map[string]any{"goal": "atomic"}, ctx)
	if skip.Kind != chief.ExpandSkip {
		t.Errorf("payload without steps should skip, got %v", skip.Kind)
	}

	bad := c.ExpandNode("n3", map[string]any{"steps": []any{"not a map"}}, ctx)
	if bad.Kind != chief.ExpandError {
		t.Errorf("malformed step should error, got %v", bad.Kind)
	}
}

func TestPlanChiefEstimatePriority(t *testing.T) {
	c, _ := newPlanChief(t)

	if got := c.EstimatePriority(map[string]any{"weight": 0.8}); got != 0.8 {
		t.Errorf("weighted estimate = %v, want 0.8", got)
	}
	if got := c.EstimatePriority(map[string]any{}); got != chief.DefaultPriority {
		t.Errorf("default estimate = %v, want %v", got, chief.DefaultPriority)
	}
	if got := c.EstimatePriority(map[string]any{"weight": 3.5}); got != chief.DefaultPriority {
		t.Errorf("out-of-range weight should fall back, got %v", got)
	}
}

func TestPlanChiefCompactCadence(t *testing.T) {
	c, ctx := newPlanChief(t)
	ctx.Set("ticks_since_compact", 60)

	obs, err := c.ObserveState(ctx)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	action := c.ChooseAction(obs)
	if action.Tag != ActionCompact {
		t.Fatalf("action = %s, want %s", action.Tag, ActionCompact)
	}
	if err := c.ApplyAction(action, ctx); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := ctx.GetInt("ticks_since_compact", -1); got != 0 {
		t.Errorf("ticks_since_compact = %d, want 0 after compact", got)
	}
}
