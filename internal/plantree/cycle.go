package plantree

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/pkg/models"
)

// ActionKind labels one engine action within a cycle.
type ActionKind string

const (
	// ActionRecoverStalled is a running node reset to ready.
	ActionRecoverStalled ActionKind = "recover_stalled"
	// ActionExpand is a composite node expanded into children.
	ActionExpand ActionKind = "expand"
	// ActionPerform is a leaf node executed.
	ActionPerform ActionKind = "perform"
)

// ScheduledAction is one entry in a cycle's ordered action log.
type ScheduledAction struct {
	// Kind is what the engine did.
	Kind ActionKind
	// NodeID is the node acted on.
	NodeID string
}

// CycleReport summarizes one scheduling cycle.
type CycleReport struct {
	// Actions is the ordered log of what the cycle did. Stall
	// recoveries always precede new work.
	Actions []ScheduledAction
	// Recovered lists nodes reset from running back to ready.
	Recovered []string
	// Expanded lists composite nodes expanded this cycle.
	Expanded []string
	// Performed lists leaf nodes executed this cycle.
	Performed []string
	// FailedNodes lists nodes that reached failed this cycle.
	FailedNodes []string
	// CompletedTrees lists trees that reached completed this cycle.
	CompletedTrees []string
	// FailedTrees lists trees that reached failed this cycle.
	FailedTrees []string
}

// ActionCount returns the total number of actions taken in the cycle.
func (r *CycleReport) ActionCount() int { return len(r.Actions) }

// treeWork is one tree's working copy for the current cycle.
type treeWork struct {
	tree  *models.PlanTree
	nodes []models.PlanNode
}

// readyRef pairs a schedulable node with its owning tree.
type readyRef struct {
	node *models.PlanNode
	tree *models.PlanTree
}

// RunCycle executes one scheduling pass: promote pending nodes in every
// active tree, recover stalls, then schedule the ready set by priority
// up to the parallelism cap. The ready set spans all active trees and
// is sorted once, so a high-priority node in a newer tree outranks
// lower-priority nodes everywhere. It is recomputed fresh from current
// node statuses; nothing is cached across cycles.
func (e *Engine) RunCycle(planner chief.Planner, ctx *chief.DomainContext) (*CycleReport, error) {
	if planner == nil {
		return nil, fmt.Errorf("plan cycle requires a planner")
	}

	trees, err := e.ActiveTrees()
	if err != nil {
		return nil, fmt.Errorf("list active trees: %w", err)
	}

	report := &CycleReport{}
	slots := e.cfg.Parallelism

	works := make([]*treeWork, 0, len(trees))
	for i := range trees {
		tree := &trees[i]

		nodes, err := e.store.ListNodesByTree(tree.ID)
		if err != nil {
			return report, fmt.Errorf("list nodes for tree %s: %w", tree.ID, err)
		}

		byID := make(map[string]*models.PlanNode, len(nodes))
		for j := range nodes {
			byID[nodes[j].ID] = &nodes[j]
		}
		e.promoteReady(nodes, byID)

		works = append(works, &treeWork{tree: tree, nodes: nodes})
	}

	// Stall recovery across every tree takes priority over new work.
	touched := make(map[string]bool)
	for _, w := range works {
		for id := range e.recoverStalled(w.nodes, &slots, report) {
			touched[id] = true
		}
	}

	// One global ready set, sorted once.
	var ready []readyRef
	for _, w := range works {
		for _, n := range e.collectReady(w.nodes, touched) {
			ready = append(ready, readyRef{node: n, tree: w.tree})
		}
	}
	e.sortReady(ready, planner)

	for _, r := range ready {
		if slots <= 0 {
			break
		}
		slots--

		switch r.node.NodeType {
		case models.NodeTypeComposite:
			e.expandNode(planner, ctx, r.tree, r.node, report)
		case models.NodeTypeLeaf:
			e.performNode(planner, ctx, r.node, report)
		}
	}

	for _, w := range works {
		if err := e.persistNodes(w.nodes); err != nil {
			return report, err
		}
		if err := e.settleTree(w.tree, report); err != nil {
			return report, err
		}
	}

	return report, nil
}

// promoteReady moves pending nodes whose parent is running or done
// into ready.
func (e *Engine) promoteReady(nodes []models.PlanNode, byID map[string]*models.PlanNode) {
	now := e.now()
	for i := range nodes {
		n := &nodes[i]
		if n.Status != models.NodeStatusPending {
			continue
		}
		if n.ParentID == "" {
			n.Status = models.NodeStatusReady
			ready := now
			n.ReadySince = &ready
			continue
		}
		parent, ok := byID[n.ParentID]
		if !ok {
			continue
		}
		if parent.Status == models.NodeStatusRunning || parent.Status == models.NodeStatusDone {
			n.Status = models.NodeStatusReady
			ready := now
			n.ReadySince = &ready
		}
	}
}

// recoverStalled resets wedged running leaves to ready, or fails them
// once their attempts are exhausted. Running composites are waiting on
// children, not wedged, so they are never stall candidates. Each
// recovery consumes one scheduling slot. Returns the IDs touched so
// the same cycle does not immediately re-execute them.
func (e *Engine) recoverStalled(nodes []models.PlanNode, slots *int, report *CycleReport) map[string]bool {
	now := e.now()
	touched := make(map[string]bool)

	for i := range nodes {
		n := &nodes[i]
		if n.NodeType != models.NodeTypeLeaf {
			continue
		}
		if n.Status != models.NodeStatusRunning || n.StartedAt == nil {
			continue
		}
		if now.Sub(*n.StartedAt) < e.cfg.StallThreshold {
			continue
		}
		if *slots <= 0 {
			break
		}
		*slots--
		touched[n.ID] = true

		if n.Attempts >= e.cfg.MaxAttempts {
			n.Status = models.NodeStatusFailed
			n.Error = fmt.Sprintf("stalled after %d attempts", n.Attempts)
			report.FailedNodes = append(report.FailedNodes, n.ID)
			debugLog("[plantree] node %s failed: %s", n.ID, n.Error)
			continue
		}

		n.Status = models.NodeStatusReady
		ready := now
		n.ReadySince = &ready
		n.StartedAt = nil
		report.Actions = append(report.Actions, ScheduledAction{Kind: ActionRecoverStalled, NodeID: n.ID})
		report.Recovered = append(report.Recovered, n.ID)
		debugLog("[plantree] recovered stalled node %s (attempt %d)", n.ID, n.Attempts)
	}
	return touched
}

// collectReady gathers schedulable nodes, excluding ones touched by
// stall recovery this cycle.
func (e *Engine) collectReady(nodes []models.PlanNode, exclude map[string]bool) []*models.PlanNode {
	var ready []*models.PlanNode
	for i := range nodes {
		n := &nodes[i]
		if n.Status == models.NodeStatusReady && !exclude[n.ID] {
			ready = append(ready, n)
		}
	}
	return ready
}

// sortReady orders the cross-tree ready set by descending priority,
// then oldest ready first, then ID for full determinism.
func (e *Engine) sortReady(ready []readyRef, planner chief.Planner) {
	sort.SliceStable(ready, func(i, j int) bool {
		pi := e.resolvePriority(ready[i].node, planner)
		pj := e.resolvePriority(ready[j].node, planner)
		if pi != pj {
			return pi > pj
		}
		ri, rj := ready[i].node.ReadySince, ready[j].node.ReadySince
		if ri != nil && rj != nil && !ri.Equal(*rj) {
			return ri.Before(*rj)
		}
		return ready[i].node.ID < ready[j].node.ID
	})
}

// resolvePriority returns the node's explicit priority, falling back
// to the planner's estimate when unset. Explicit priority always wins.
func (e *Engine) resolvePriority(n *models.PlanNode, planner chief.Planner) float64 {
	if n.Priority >= 0 {
		return n.Priority
	}
	if planner != nil {
		return planner.EstimatePriority(n.Payload)
	}
	return chief.DefaultPriority
}

// expandNode expands one composite node. Skip converts the node into a
// de-facto leaf that stays ready for the next cycle.
func (e *Engine) expandNode(planner chief.Planner, ctx *chief.DomainContext, tree *models.PlanTree, n *models.PlanNode, report *CycleReport) {
	now := e.now()
	result := planner.ExpandNode(n.ID, n.Payload, ctx)

	switch result.Kind {
	case chief.ExpandOK:
		started := now
		n.Status = models.NodeStatusRunning
		n.StartedAt = &started
		n.Attempts++

		for idx, spec := range result.Children {
			child := &models.PlanNode{
				ID:        uuid.NewString(),
				TreeID:    tree.ID,
				ParentID:  n.ID,
				Label:     spec.Label,
				NodeType:  spec.NodeType,
				Status:    models.NodeStatusReady, // parent is running
				Payload:   spec.Payload,
				Priority:  spec.Priority,
				Order:     spec.Order,
				CreatedAt: now,
			}
			if child.Order == 0 {
				child.Order = idx
			}
			ready := now
			child.ReadySince = &ready
			if err := e.store.CreateNode(child); err != nil {
				debugLog("[plantree] create child of %s: %v", n.ID, err)
			}
		}
		report.Actions = append(report.Actions, ScheduledAction{Kind: ActionExpand, NodeID: n.ID})
		report.Expanded = append(report.Expanded, n.ID)
		debugLog("[plantree] expanded node %s into %d children", n.ID, len(result.Children))

	case chief.ExpandSkip:
		// No children; the node becomes directly executable.
		n.NodeType = models.NodeTypeLeaf
		if len(n.Payload) == 0 {
			// Nothing to execute either; the skip is a no-op step.
			n.Status = models.NodeStatusDone
			n.Result = map[string]any{"skipped_expansion": result.Reason}
		}
		debugLog("[plantree] expansion skipped for node %s: %s", n.ID, result.Reason)

	case chief.ExpandError:
		n.Status = models.NodeStatusFailed
		n.Error = fmt.Sprintf("expand_failure: %v", result.Err)
		n.Attempts++
		report.FailedNodes = append(report.FailedNodes, n.ID)
		debugLog("[plantree] expand_failure on node %s: %v", n.ID, result.Err)
	}
}

// performNode executes one leaf node. A running StepResult leaves the
// node in flight for later cycles (background work); the stall
// threshold bounds how long that may last.
func (e *Engine) performNode(planner chief.Planner, ctx *chief.DomainContext, n *models.PlanNode, report *CycleReport) {
	started := e.now()
	n.Status = models.NodeStatusRunning
	n.StartedAt = &started
	n.Attempts++

	report.Actions = append(report.Actions, ScheduledAction{Kind: ActionPerform, NodeID: n.ID})
	report.Performed = append(report.Performed, n.ID)

	result, err := planner.PerformStep(n.ID, n.Payload, ctx)
	if err != nil {
		n.Status = models.NodeStatusFailed
		n.Error = fmt.Sprintf("step_failure: %v", err)
		report.FailedNodes = append(report.FailedNodes, n.ID)
		debugLog("[plantree] step_failure on node %s: %v", n.ID, err)
		return
	}

	switch result.Status {
	case models.NodeStatusDone, models.NodeStatusSkipped:
		n.Status = result.Status
		n.Result = result.Result
	case models.NodeStatusFailed:
		n.Status = models.NodeStatusFailed
		n.Result = result.Result
		report.FailedNodes = append(report.FailedNodes, n.ID)
	case models.NodeStatusRunning:
		// Step handed off to a background task; keep the node in
		// flight and let later cycles observe completion or stall.
	default:
		n.Status = models.NodeStatusFailed
		n.Error = fmt.Sprintf("step_failure: invalid step status %q", result.Status)
		report.FailedNodes = append(report.FailedNodes, n.ID)
	}
}

// persistNodes writes back every node of the cycle's working copy.
func (e *Engine) persistNodes(nodes []models.PlanNode) error {
	for i := range nodes {
		if err := e.store.UpdateNode(&nodes[i]); err != nil {
			return fmt.Errorf("persist node %s: %w", nodes[i].ID, err)
		}
	}
	return nil
}

// settleTree completes running composite nodes whose children are all
// terminal, then derives the tree's aggregate status. Node failures
// propagate upward only after every sibling has reached a terminal
// status (best-effort siblings policy).
func (e *Engine) settleTree(tree *models.PlanTree, report *CycleReport) error {
	nodes, err := e.store.ListNodesByTree(tree.ID)
	if err != nil {
		return fmt.Errorf("reload nodes for tree %s: %w", tree.ID, err)
	}

	children := make(map[string][]*models.PlanNode)
	byID := make(map[string]*models.PlanNode, len(nodes))
	for i := range nodes {
		n := &nodes[i]
		byID[n.ID] = n
		if n.ParentID != "" {
			children[n.ParentID] = append(children[n.ParentID], n)
		}
	}

	// Iterate to a fixpoint so completions bubble up deep trees.
	for {
		settled := false
		for i := range nodes {
			n := &nodes[i]
			if n.Status != models.NodeStatusRunning || n.NodeType != models.NodeTypeComposite {
				continue
			}
			kids := children[n.ID]
			if len(kids) == 0 {
				continue
			}
			allTerminal := true
			anyFailed := false
			for _, k := range kids {
				if !k.Status.Terminal() {
					allTerminal = false
					break
				}
				if k.Status == models.NodeStatusFailed {
					anyFailed = true
				}
			}
			if !allTerminal {
				continue
			}
			if anyFailed {
				n.Status = models.NodeStatusFailed
				n.Error = "one or more child steps failed"
			} else {
				n.Status = models.NodeStatusDone
			}
			if err := e.store.UpdateNode(n); err != nil {
				return fmt.Errorf("persist node %s: %w", n.ID, err)
			}
			settled = true
		}
		if !settled {
			break
		}
	}

	now := e.now()

	// First scheduling pass moves a pending tree to running.
	if tree.Status == models.TreeStatusPending {
		anyScheduled := false
		for i := range nodes {
			if nodes[i].Status != models.NodeStatusPending {
				anyScheduled = true
				break
			}
		}
		if anyScheduled {
			tree.Status = models.TreeStatusRunning
			started := now
			tree.StartedAt = &started
			if err := e.store.UpdateTree(tree); err != nil {
				return fmt.Errorf("persist tree %s: %w", tree.ID, err)
			}
		}
	}

	// Terminal aggregation.
	allTerminal := true
	anyFailed := false
	for i := range nodes {
		if !nodes[i].Status.Terminal() {
			allTerminal = false
			break
		}
		if nodes[i].Status == models.NodeStatusFailed {
			anyFailed = true
		}
	}
	if !allTerminal || tree.Status.Terminal() {
		return nil
	}

	completed := now
	tree.CompletedAt = &completed
	if anyFailed {
		tree.Status = models.TreeStatusFailed
		tree.ErrorMessage = "one or more plan steps failed"
		report.FailedTrees = append(report.FailedTrees, tree.ID)
	} else {
		tree.Status = models.TreeStatusCompleted
		report.CompletedTrees = append(report.CompletedTrees, tree.ID)
	}
	if err := e.store.UpdateTree(tree); err != nil {
		return fmt.Errorf("persist tree %s: %w", tree.ID, err)
	}
	debugLog("[plantree] tree %s settled as %s", tree.ID, tree.Status)
	return nil
}
