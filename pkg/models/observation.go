// Package models defines the shared data model for the orchestration
// engine: observations, actions, trajectory steps, plan trees, and
// capabilities.
package models

// Observation is an immutable snapshot of a domain's state taken at
// the start of a chief's turn. Features hold only primitive or
// composite values (counts, ratios, booleans, nested maps), never live
// references into mutable domain state.
type Observation struct {
	// Domain is the tag of the observing chief's domain.
	Domain string `json:"domain"`
	// Features is the compact feature map derived from domain state.
	Features map[string]any `json:"features"`
	// Tick is the scheduling interval the observation was taken in.
	Tick uint64 `json:"tick"`
	// ContextRef identifies the domain context the snapshot came from.
	ContextRef string `json:"context_ref,omitempty"`
}

// Float returns a feature as float64, coercing the numeric types that
// survive JSON round-trips. Missing or non-numeric features return the
// fallback.
func (o Observation) Float(key string, fallback float64) float64 {
	switch v := o.Features[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	default:
		return fallback
	}
}

// Int returns a feature as int, with the same coercions as Float.
func (o Observation) Int(key string, fallback int) int {
	switch v := o.Features[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// Bool returns a boolean feature, or the fallback when absent.
func (o Observation) Bool(key string, fallback bool) bool {
	if v, ok := o.Features[key].(bool); ok {
		return v
	}
	return fallback
}
