package chief

import "sync"

// DomainContext is the caller-supplied state container for one domain.
// The conductor treats it as opaque; each chief exclusively owns and
// mutates its context during its turn. Values must be primitives or
// composites so observations derived from them stay snapshot-safe.
type DomainContext struct {
	// ref identifies the context in observations and logs.
	ref string
	// values holds the domain state.
	values map[string]any
	// mu guards values. Chiefs run sequentially within a cycle, but a
	// chief may fan out private workers during ApplyAction.
	mu sync.RWMutex
}

// NewDomainContext creates an empty context with the given reference.
func NewDomainContext(ref string) *DomainContext {
	return &DomainContext{
		ref:    ref,
		values: make(map[string]any),
	}
}

// Ref returns the context reference string.
func (c *DomainContext) Ref() string { return c.ref }

// Get returns the value for a key, or nil.
func (c *DomainContext) Get(key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[key]
}

// GetInt returns an int value, coercing int64 and float64, or the
// fallback.
func (c *DomainContext) GetInt(key string, fallback int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch v := c.values[key].(type) {
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

// GetFloat returns a float64 value, coercing int and int64, or the
// fallback.
func (c *DomainContext) GetFloat(key string, fallback float64) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch v := c.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

// GetString returns a string value, or the fallback.
func (c *DomainContext) GetString(key, fallback string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(string); ok {
		return v
	}
	return fallback
}

// GetBool returns a bool value, or the fallback.
func (c *DomainContext) GetBool(key string, fallback bool) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if v, ok := c.values[key].(bool); ok {
		return v
	}
	return fallback
}

// Set stores a value.
func (c *DomainContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// AddInt adds delta to an integer value and returns the new total.
// Missing values start at zero.
func (c *DomainContext) AddInt(key string, delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, _ := c.values[key].(int)
	cur += delta
	c.values[key] = cur
	return cur
}

// Delete removes a key.
func (c *DomainContext) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Snapshot returns a shallow copy of the values map, suitable for use
// as observation features or trajectory state.
func (c *DomainContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]any, len(c.values))
	for k, v := range c.values {
		snap[k] = v
	}
	return snap
}
