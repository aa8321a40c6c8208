package chiefs

import (
	"fmt"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/config"
	"github.com/conductor-sh/conductor/internal/plantree"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Plan chief action tags.
const (
	// ActionCreateTree turns the next queued goal into a plan tree.
	ActionCreateTree = "create_tree"
	// ActionRunCycle runs one plan scheduling cycle.
	ActionRunCycle = "run_cycle"
	// ActionCompact archives terminal trees past retention.
	ActionCompact = "compact"
)

// Plan context keys.
const (
	keyGoalQueue      = "goal_queue"
	keyActiveTrees    = "active_trees"
	keyPerformedLast  = "performed_last_turn"
	keyExpandedLast   = "expanded_last_turn"
	keyRecoveredLast  = "recovered_last_turn"
	keyFailedNodes    = "failed_nodes_last_turn"
	keyCompletedLast  = "trees_completed_last_turn"
	keyTreeFailedLast = "trees_failed_last_turn"
	keyStepsExecuted  = "steps_executed"
	keyTicksNoCompact = "ticks_since_compact"
)

// PlanChief manages goal decomposition through the plan tree engine.
// Queued goals become trees; active trees get one scheduling cycle per
// turn; terminal trees are compacted on a slow cadence. The chief is
// also the engine's planner: it expands composite payloads into steps
// and executes leaves.
type PlanChief struct {
	policies *config.PolicySet
	engine   *plantree.Engine
}

// NewPlanChief creates a plan chief over the given engine. A nil set
// uses built-in thresholds.
func NewPlanChief(engine *plantree.Engine, policies *config.PolicySet) *PlanChief {
	return &PlanChief{policies: policies, engine: engine}
}

func (c *PlanChief) policy() *config.ChiefPolicy {
	if c.policies == nil {
		return nil
	}
	return c.policies.Get("plan")
}

var _ chief.Chief = (*PlanChief)(nil)
var _ chief.ActionSpaced = (*PlanChief)(nil)
var _ chief.Planner = (*PlanChief)(nil)

// Domain returns "plan".
func (c *PlanChief) Domain() string { return "plan" }

// Engine returns the underlying plan tree engine.
func (c *PlanChief) Engine() *plantree.Engine { return c.engine }

// QueueGoal appends a goal to the chief's intake queue. A goal is
// either a plain string or a map with "goal" and optional "steps".
func QueueGoal(ctx *chief.DomainContext, goal any) {
	queue, _ := ctx.Get(keyGoalQueue).([]any)
	ctx.Set(keyGoalQueue, append(queue, goal))
}

// ObserveState snapshots intake and tree activity.
func (c *PlanChief) ObserveState(ctx *chief.DomainContext) (models.Observation, error) {
	active, err := c.engine.ActiveTrees()
	if err != nil {
		return models.Observation{}, fmt.Errorf("list active trees: %w", err)
	}
	queue, _ := ctx.Get(keyGoalQueue).([]any)

	return models.Observation{
		Features: map[string]any{
			keyActiveTrees:    len(active),
			"queued_goals":    len(queue),
			keyTicksNoCompact: ctx.GetInt(keyTicksNoCompact, 0),
		},
	}, nil
}

// ChooseAction drains the goal queue first, then drives active trees,
// then compacts on a slow cadence.
func (c *PlanChief) ChooseAction(obs models.Observation) models.Action {
	compactCadence := int(c.policy().Threshold("compact_cadence", 50))

	switch {
	case obs.Int("queued_goals", 0) > 0:
		return models.NewAction(ActionCreateTree)
	case obs.Int(keyActiveTrees, 0) > 0:
		return models.NewAction(ActionRunCycle)
	case obs.Int(keyTicksNoCompact, 0) >= compactCadence:
		return models.NewAction(ActionCompact)
	default:
		return models.Wait(500)
	}
}

// ApplyAction executes the chosen plan operation.
func (c *PlanChief) ApplyAction(action models.Action, ctx *chief.DomainContext) error {
	switch action.Tag {
	case ActionCreateTree:
		return c.createNextTree(ctx)

	case ActionRunCycle:
		report, err := c.engine.RunCycle(c, ctx)
		ctx.AddInt(keyTicksNoCompact, 1)
		if report != nil {
			ctx.Set(keyPerformedLast, len(report.Performed))
			ctx.Set(keyExpandedLast, len(report.Expanded))
			ctx.Set(keyRecoveredLast, len(report.Recovered))
			ctx.Set(keyFailedNodes, len(report.FailedNodes))
			ctx.Set(keyCompletedLast, len(report.CompletedTrees))
			ctx.Set(keyTreeFailedLast, len(report.FailedTrees))
		}
		return err

	case ActionCompact:
		archived, err := c.engine.Compact()
		ctx.Set(keyTicksNoCompact, 0)
		ctx.Set("archived_last_turn", len(archived))
		return err

	case models.ActionWait, models.ActionDefer:
		return nil

	default:
		return fmt.Errorf("plan chief: %w: %s", chief.ErrUnknownAction, action.Tag)
	}
}

// createNextTree pops the next queued goal and creates its tree.
func (c *PlanChief) createNextTree(ctx *chief.DomainContext) error {
	queue, _ := ctx.Get(keyGoalQueue).([]any)
	if len(queue) == 0 {
		return nil
	}
	next := queue[0]
	ctx.Set(keyGoalQueue, queue[1:])

	goal := ""
	payload := map[string]any{}
	switch v := next.(type) {
	case string:
		goal = v
		payload["goal"] = v
	case map[string]any:
		goal, _ = v["goal"].(string)
		payload = v
	default:
		return fmt.Errorf("plan chief: unsupported goal entry %T", next)
	}
	if goal == "" {
		return fmt.Errorf("plan chief: queued goal has no goal string")
	}

	_, err := c.engine.CreateTree(goal, c.Domain(), nil, chief.NodeSpec{
		NodeType: models.NodeTypeComposite,
		Payload:  payload,
		Priority: models.PriorityUnset,
	})
	return err
}

// ReportOutcome rewards goal progress and penalizes failures and
// recoveries from the last cycle. Pure over the context state.
func (c *PlanChief) ReportOutcome(ctx *chief.DomainContext) chief.Outcome {
	completed := ctx.GetInt(keyCompletedLast, 0)
	failedTrees := ctx.GetInt(keyTreeFailedLast, 0)
	performed := ctx.GetInt(keyPerformedLast, 0)
	recovered := ctx.GetInt(keyRecoveredLast, 0)
	failedNodes := ctx.GetInt(keyFailedNodes, 0)

	reward := 10.0*float64(completed) - 5.0*float64(failedTrees) +
		1.0*float64(performed) - 1.0*float64(recovered) - 0.5*float64(failedNodes)

	return chief.Outcome{
		Reward: reward,
		Metrics: map[string]float64{
			"performed":  float64(performed),
			"recovered":  float64(recovered),
			"node_fails": float64(failedNodes),
		},
	}
}

// ActionSpace declares the plan chief's executable vocabulary.
func (c *PlanChief) ActionSpace() []models.Capability {
	return []models.Capability{
		{ActionTag: ActionCreateTree, Domain: "plan",
			Description: "Create a plan tree for the next queued goal"},
		{ActionTag: ActionRunCycle, Domain: "plan",
			Description: "Run one plan scheduling cycle"},
		{ActionTag: ActionCompact, Domain: "plan",
			Description: "Archive terminal trees past retention"},
	}
}

// PlanCapabilities declares the plan steps this chief can execute.
func (c *PlanChief) PlanCapabilities() []models.Capability {
	return []models.Capability{
		{ActionTag: "execute_step", Domain: "plan",
			Description: "Execute one decomposed plan step", ParamKeys: []string{"op"}},
	}
}

// ExpandNode decomposes a payload carrying a "steps" list into child
// nodes. Steps are maps with "label", optional "op", "weight", and
// nested "steps" for composite children. A payload without steps is
// not expandable.
func (c *PlanChief) ExpandNode(nodeID string, payload map[string]any, ctx *chief.DomainContext) chief.ExpandResult {
	rawSteps, ok := payload["steps"].([]any)
	if !ok || len(rawSteps) == 0 {
		return chief.SkipExpansion("no step list in payload")
	}

	children := make([]chief.NodeSpec, 0, len(rawSteps))
	for i, raw := range rawSteps {
		step, ok := raw.(map[string]any)
		if !ok {
			return chief.ExpandFailed(fmt.Errorf("step %d of node %s is %T, not a map", i, nodeID, raw))
		}

		spec := chief.NodeSpec{
			NodeType: models.NodeTypeLeaf,
			Payload:  step,
			Priority: models.PriorityUnset,
			Order:    i,
		}
		if label, ok := step["label"].(string); ok {
			spec.Label = label
		}
		if _, nested := step["steps"].([]any); nested {
			spec.NodeType = models.NodeTypeComposite
		}
		if w, ok := step["priority"].(float64); ok {
			spec.Priority = w
		}
		children = append(children, spec)
	}
	return chief.Expanded(children...)
}

// PerformStep executes one leaf step and tallies it in the context.
func (c *PlanChief) PerformStep(nodeID string, payload map[string]any, ctx *chief.DomainContext) (chief.StepResult, error) {
	op, _ := payload["op"].(string)
	if op == "" {
		op = "noop"
	}

	ctx.AddInt(keyStepsExecuted, 1)
	return chief.StepResult{
		Status: models.NodeStatusDone,
		Result: map[string]any{"op": op, "node_id": nodeID},
	}, nil
}

// EstimatePriority scores unprioritized nodes by their declared
// weight, defaulting to the shared midpoint.
func (c *PlanChief) EstimatePriority(payload map[string]any) float64 {
	if w, ok := payload["weight"].(float64); ok && w >= 0 && w <= 1 {
		return w
	}
	return chief.DefaultPriority
}
