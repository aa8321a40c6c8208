// Package chief defines the contract every domain controller
// implements. The conductor drives each registered chief through
// observe, decide, act, and report once per tick; anything beyond the
// four required operations is optional.
package chief

import (
	"github.com/conductor-sh/conductor/pkg/models"
)

// Chief is the four-operation contract for a domain controller.
// Implementations plug into the conductor by name; a new domain needs
// nothing beyond satisfying this interface.
type Chief interface {
	// Domain returns the domain tag this chief controls.
	Domain() string

	// ObserveState returns a compact feature snapshot of the domain.
	// It must be side-effect free and must not block on I/O.
	ObserveState(ctx *DomainContext) (models.Observation, error)

	// ChooseAction is a pure decision function over an observation.
	// Implementations are typically ordered priority cascades; a
	// learned policy can replace the cascade without any conductor
	// change.
	ChooseAction(obs models.Observation) models.Action

	// ApplyAction is the only step permitted to mutate domain state or
	// trigger side effects. It must tolerate actions outside its known
	// set by treating them as a no-op, never by crashing.
	ApplyAction(action models.Action, ctx *DomainContext) error

	// ReportOutcome derives reward and metrics purely from the
	// post-action context. Calling it twice on identical context state
	// must yield identical results.
	ReportOutcome(ctx *DomainContext) Outcome
}

// ActionSpaced is implemented by chiefs that declare an enumerable
// action space. The conductor validates chosen actions against it.
type ActionSpaced interface {
	// ActionSpace returns the declared capabilities. An empty result
	// disables conformance checking for this chief.
	ActionSpace() []models.Capability
}

// Outcome is the result of a chief's ReportOutcome.
type Outcome struct {
	// Reward is the scalar outcome signal for this turn.
	Reward float64
	// Metrics holds named gauge values derived from domain state.
	Metrics map[string]float64
	// Step is the trajectory step recorded for this turn.
	Step models.TrajectoryStep
}

// StepResult is the outcome of executing a leaf node.
type StepResult struct {
	// Status is the node status to set: done, failed, or skipped.
	Status models.NodeStatus
	// Result carries step output stored on the node.
	Result map[string]any
}

// NodeSpec describes a child node produced by expansion.
type NodeSpec struct {
	// Label is the short description of the step.
	Label string
	// NodeType is composite or leaf.
	NodeType models.NodeType
	// Payload carries the chief-specific step definition.
	Payload map[string]any
	// Priority orders the node among ready nodes; models.PriorityUnset
	// defers to EstimatePriority.
	Priority float64
	// Order positions the node among its siblings.
	Order int
}

// ExpandKind discriminates the outcomes of ExpandNode.
type ExpandKind int

const (
	// ExpandOK means children were produced.
	ExpandOK ExpandKind = iota
	// ExpandSkip means the node should be treated as a de-facto leaf.
	ExpandSkip
	// ExpandError means expansion failed.
	ExpandError
)

// ExpandResult is the outcome of expanding a composite node.
type ExpandResult struct {
	// Kind discriminates ok, skip, and error results.
	Kind ExpandKind
	// Children are the new child nodes for an ok result.
	Children []NodeSpec
	// Reason explains a skip result.
	Reason string
	// Err is the failure for an error result.
	Err error
}

// Expanded returns an ok result with the given children.
func Expanded(children ...NodeSpec) ExpandResult {
	return ExpandResult{Kind: ExpandOK, Children: children}
}

// SkipExpansion returns a skip result with the given reason.
func SkipExpansion(reason string) ExpandResult {
	return ExpandResult{Kind: ExpandSkip, Reason: reason}
}

// ExpandFailed returns an error result.
func ExpandFailed(err error) ExpandResult {
	return ExpandResult{Kind: ExpandError, Err: err}
}

// Planner is the optional plan extension of the chief contract. A
// chief that does not implement it is not plan-aware.
type Planner interface {
	// PlanCapabilities declares the plan steps this chief can execute.
	PlanCapabilities() []models.Capability

	// ExpandNode decomposes a composite node into children.
	ExpandNode(nodeID string, payload map[string]any, ctx *DomainContext) ExpandResult

	// PerformStep executes a leaf node.
	PerformStep(nodeID string, payload map[string]any, ctx *DomainContext) (StepResult, error)

	// EstimatePriority scores a node whose priority is unset.
	EstimatePriority(payload map[string]any) float64
}

// DefaultPriority is used when a node's priority is unset and the
// owning chief does not implement Planner.
const DefaultPriority = 0.5
