package models

import "time"

// TreeStatus represents the aggregate state of a plan tree.
type TreeStatus string

const (
	// TreeStatusPending indicates the tree has not been scheduled yet.
	TreeStatusPending TreeStatus = "pending"
	// TreeStatusRunning indicates at least one scheduling pass has run.
	TreeStatusRunning TreeStatus = "running"
	// TreeStatusCompleted indicates every node is done or skipped.
	TreeStatusCompleted TreeStatus = "completed"
	// TreeStatusFailed indicates the tree stopped with failed nodes.
	TreeStatusFailed TreeStatus = "failed"
	// TreeStatusCancelled indicates the tree was cancelled externally.
	TreeStatusCancelled TreeStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TreeStatus) Valid() bool {
	switch s {
	case TreeStatusPending, TreeStatusRunning, TreeStatusCompleted, TreeStatusFailed, TreeStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that end the tree's lifecycle.
func (s TreeStatus) Terminal() bool {
	switch s {
	case TreeStatusCompleted, TreeStatusFailed, TreeStatusCancelled:
		return true
	default:
		return false
	}
}

// PlanTree is a hierarchical decomposition of a goal into schedulable
// steps. Only the tree and its nodes require durable storage across
// ticks; everything else in a cycle is ephemeral.
type PlanTree struct {
	// ID is the unique identifier for this tree.
	ID string `json:"id"`
	// Goal is the human-readable objective the tree decomposes.
	Goal string `json:"goal"`
	// Domain is the tag of the owning chief's domain.
	Domain string `json:"domain"`
	// Status is the aggregate state of the tree.
	Status TreeStatus `json:"status"`
	// Metadata carries caller-supplied annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
	// RootNodeID is the ID of the single root node.
	RootNodeID string `json:"root_node_id"`
	// CreatedAt is when the tree was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the tree first transitioned to running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the tree reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// ErrorMessage describes why the tree failed, if it did.
	ErrorMessage string `json:"error_message,omitempty"`
}

// NodeType distinguishes expandable nodes from executable leaves.
type NodeType string

const (
	// NodeTypeComposite nodes are expanded into children.
	NodeTypeComposite NodeType = "composite"
	// NodeTypeLeaf nodes are executed directly via PerformStep.
	NodeTypeLeaf NodeType = "leaf"
)

// Valid returns true if the node type is a known value.
func (t NodeType) Valid() bool {
	return t == NodeTypeComposite || t == NodeTypeLeaf
}

// NodeStatus represents the state of a plan node. Transitions are
// monotonic along pending -> ready -> running -> terminal; the single
// sanctioned exception is stall recovery, which resets a wedged
// running node back to ready for a retry.
type NodeStatus string

const (
	// NodeStatusPending indicates dependencies are not yet satisfied.
	NodeStatusPending NodeStatus = "pending"
	// NodeStatusReady indicates the node is eligible for scheduling.
	NodeStatusReady NodeStatus = "ready"
	// NodeStatusRunning indicates expansion or execution is in flight.
	NodeStatusRunning NodeStatus = "running"
	// NodeStatusDone indicates the node completed successfully.
	NodeStatusDone NodeStatus = "done"
	// NodeStatusFailed indicates the node exhausted its retries.
	NodeStatusFailed NodeStatus = "failed"
	// NodeStatusSkipped indicates expansion declined the node.
	NodeStatusSkipped NodeStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s NodeStatus) Valid() bool {
	switch s {
	case NodeStatusPending, NodeStatusReady, NodeStatusRunning, NodeStatusDone, NodeStatusFailed, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// Terminal returns true for statuses that end the node's lifecycle.
func (s NodeStatus) Terminal() bool {
	switch s {
	case NodeStatusDone, NodeStatusFailed, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// PriorityUnset marks a node whose priority should come from the
// owning chief's EstimatePriority.
const PriorityUnset = -1.0

// PlanNode is one step in a plan tree, stored flat with a parent_id
// back-reference. The in-memory tree view is reconstructed from the
// flat node list when needed.
type PlanNode struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`
	// TreeID is the ID of the owning tree.
	TreeID string `json:"tree_id"`
	// ParentID is the ID of the parent node; empty for the root.
	ParentID string `json:"parent_id,omitempty"`
	// Label is the short description of the step.
	Label string `json:"label"`
	// NodeType is composite or leaf.
	NodeType NodeType `json:"node_type"`
	// Status is the current state of the node.
	Status NodeStatus `json:"status"`
	// Payload carries the chief-specific step definition.
	Payload map[string]any `json:"payload,omitempty"`
	// Result carries the step result once the node is terminal.
	Result map[string]any `json:"result,omitempty"`
	// Priority orders ready nodes; PriorityUnset defers to the chief.
	Priority float64 `json:"priority"`
	// Order positions the node among its siblings.
	Order int `json:"order"`
	// Attempts counts executions including stall-recovery retries.
	Attempts int `json:"attempts"`
	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`
	// ReadySince is when the node last became ready.
	ReadySince *time.Time `json:"ready_since,omitempty"`
	// StartedAt is when the node last transitioned to running.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// Error describes the most recent failure, if any.
	Error string `json:"error,omitempty"`
}
