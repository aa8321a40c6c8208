package models

// Capability declares one action a chief can execute. Capabilities are
// used for introspection and conformance validation, never for
// dispatch.
type Capability struct {
	// ActionTag is the action this capability covers.
	ActionTag string `json:"action_tag"`
	// Domain is the tag of the declaring chief's domain.
	Domain string `json:"domain"`
	// Description explains the action for operators.
	Description string `json:"description,omitempty"`
	// ParamKeys lists the parameter names the action accepts.
	ParamKeys []string `json:"param_keys,omitempty"`
}

// CapabilitySet indexes capabilities by action tag for membership
// checks.
type CapabilitySet map[string]Capability

// NewCapabilitySet builds a set from a capability list. Later entries
// with the same tag replace earlier ones.
func NewCapabilitySet(caps []Capability) CapabilitySet {
	set := make(CapabilitySet, len(caps))
	for _, c := range caps {
		set[c.ActionTag] = c
	}
	return set
}

// Allows returns true if the action's tag is declared in the set.
// Wait and defer are always allowed: they are conductor-handled
// actions, not part of any chief's executable vocabulary.
func (cs CapabilitySet) Allows(a Action) bool {
	if a.IsWait() || a.IsDefer() {
		return true
	}
	_, ok := cs[a.Tag]
	return ok
}
