// Package plantree implements the hierarchical plan execution engine.
// A goal is decomposed into a tree of composite and leaf nodes stored
// flat (arena + parent_id index); each scheduling cycle recomputes the
// ready set fresh, recovers stalled nodes before starting new work,
// and executes up to a configured number of ready nodes.
package plantree

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conductor-sh/conductor/internal/chief"
	"github.com/conductor-sh/conductor/internal/planstore"
	"github.com/conductor-sh/conductor/pkg/models"
)

// Config holds tuning knobs for the engine.
type Config struct {
	// Parallelism caps how many nodes one cycle may act on,
	// stall recoveries included.
	Parallelism int
	// StallThreshold is how long a node may stay running before it is
	// considered stalled.
	StallThreshold time.Duration
	// MaxAttempts bounds executions per node, retries included. A node
	// that stalls out of its last attempt fails instead of retrying.
	MaxAttempts int
	// Retention is how long terminal trees stay in the active working
	// set before compaction archives them.
	Retention time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Parallelism:    4,
		StallThreshold: 30 * time.Second,
		MaxAttempts:    3,
		Retention:      10 * time.Minute,
	}
}

// Engine schedules plan trees against a persistence boundary. One
// engine instance serves one chief's domain; the chief invokes
// RunCycle from its ApplyAction path.
type Engine struct {
	store planstore.Store
	cfg   Config
	// now is injectable for deterministic stall tests.
	now func() time.Time
	// archived tracks tree IDs compacted out of the active working
	// set. History stays in the store.
	archived map[string]bool
}

// NewEngine creates an engine over the given store.
func NewEngine(store planstore.Store, cfg Config) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultConfig().Parallelism
	}
	if cfg.StallThreshold <= 0 {
		cfg.StallThreshold = DefaultConfig().StallThreshold
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultConfig().Retention
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		now:      time.Now,
		archived: make(map[string]bool),
	}
}

// SetClock overrides the engine's time source. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Store returns the engine's persistence boundary.
func (e *Engine) Store() planstore.Store { return e.store }

// CreateTree creates a pending tree with a single root node. Composite
// roots are expanded on first scheduling; leaf roots execute directly.
func (e *Engine) CreateTree(goal, domain string, metadata map[string]any, root chief.NodeSpec) (*models.PlanTree, error) {
	if goal == "" {
		return nil, fmt.Errorf("plan tree requires a goal")
	}
	if !root.NodeType.Valid() {
		return nil, fmt.Errorf("invalid root node type %q", root.NodeType)
	}

	now := e.now()
	tree := &models.PlanTree{
		ID:        uuid.NewString(),
		Goal:      goal,
		Domain:    domain,
		Status:    models.TreeStatusPending,
		Metadata:  metadata,
		CreatedAt: now,
	}

	rootNode := &models.PlanNode{
		ID:        uuid.NewString(),
		TreeID:    tree.ID,
		Label:     root.Label,
		NodeType:  root.NodeType,
		Status:    models.NodeStatusReady, // the root has no parent to wait for
		Payload:   root.Payload,
		Priority:  root.Priority,
		Order:     root.Order,
		CreatedAt: now,
	}
	ready := now
	rootNode.ReadySince = &ready
	if rootNode.Label == "" {
		rootNode.Label = goal
	}
	tree.RootNodeID = rootNode.ID

	if err := e.store.CreateTree(tree); err != nil {
		return nil, fmt.Errorf("create tree: %w", err)
	}
	if err := e.store.CreateNode(rootNode); err != nil {
		return nil, fmt.Errorf("create root node: %w", err)
	}
	return tree, nil
}

// CancelTree moves a non-terminal tree to cancelled.
func (e *Engine) CancelTree(id, reason string) error {
	tree, err := e.store.GetTree(id)
	if err != nil {
		return err
	}
	if tree.Status.Terminal() {
		return fmt.Errorf("plan tree %s is already %s", id, tree.Status)
	}

	now := e.now()
	tree.Status = models.TreeStatusCancelled
	tree.CompletedAt = &now
	tree.ErrorMessage = reason
	return e.store.UpdateTree(tree)
}

// ActiveTrees returns the non-terminal trees still in the working set.
func (e *Engine) ActiveTrees() ([]models.PlanTree, error) {
	trees, err := e.store.ListActiveTrees()
	if err != nil {
		return nil, err
	}
	var active []models.PlanTree
	for _, t := range trees {
		if !e.archived[t.ID] {
			active = append(active, t)
		}
	}
	return active, nil
}

// Compact archives trees whose root has been terminal longer than the
// retention window. Archived trees leave the active working set; their
// history stays in the store. Returns the archived tree IDs.
func (e *Engine) Compact() ([]string, error) {
	var archived []string
	for _, status := range []models.TreeStatus{
		models.TreeStatusCompleted,
		models.TreeStatusFailed,
		models.TreeStatusCancelled,
	} {
		trees, err := e.store.ListTreesByStatus(status)
		if err != nil {
			return archived, err
		}
		for _, t := range trees {
			if e.archived[t.ID] || t.CompletedAt == nil {
				continue
			}
			if e.now().Sub(*t.CompletedAt) >= e.cfg.Retention {
				e.archived[t.ID] = true
				archived = append(archived, t.ID)
			}
		}
	}
	return archived, nil
}

// Archived reports whether a tree has been compacted out of the
// working set.
func (e *Engine) Archived(id string) bool { return e.archived[id] }

// CompleteNode finishes a node whose step was handed off to a
// background task. Only running nodes can be completed this way, and
// only with a terminal status.
func (e *Engine) CompleteNode(nodeID string, status models.NodeStatus, result map[string]any) error {
	if !status.Terminal() {
		return fmt.Errorf("complete node %s: status %q is not terminal", nodeID, status)
	}
	node, err := e.store.GetNode(nodeID)
	if err != nil {
		return err
	}
	if node.Status != models.NodeStatusRunning {
		return fmt.Errorf("complete node %s: status is %s, not running", nodeID, node.Status)
	}
	node.Status = status
	node.Result = result
	return e.store.UpdateNode(node)
}
