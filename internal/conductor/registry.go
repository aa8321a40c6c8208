package conductor

import (
	"sync"

	"github.com/conductor-sh/conductor/internal/chief"
)

// ChiefRegistry manages registered chiefs and their domain contexts.
// It provides thread-safe storage with stable iteration order: chiefs
// run in registration order within one cycle, and re-registration
// replaces in place without changing that order.
type ChiefRegistry struct {
	// chiefs maps domain names to implementations.
	chiefs map[string]chief.Chief
	// contexts maps domain names to their state containers.
	contexts map[string]*chief.DomainContext
	// order is the registration order of domain names.
	order []string
	// mu protects all fields.
	mu sync.RWMutex
}

// NewChiefRegistry creates a new ChiefRegistry.
func NewChiefRegistry() *ChiefRegistry {
	return &ChiefRegistry{
		chiefs:   make(map[string]chief.Chief),
		contexts: make(map[string]*chief.DomainContext),
	}
}

// Register adds a chief under its domain name. Registering an existing
// domain replaces the implementation but keeps the original order slot
// and domain context.
func (r *ChiefRegistry) Register(impl chief.Chief) {
	r.mu.Lock()
	defer r.mu.Unlock()

	domain := impl.Domain()
	if _, exists := r.chiefs[domain]; !exists {
		r.order = append(r.order, domain)
		r.contexts[domain] = chief.NewDomainContext(domain)
	}
	r.chiefs[domain] = impl
}

// Unregister removes a chief and its context.
func (r *ChiefRegistry) Unregister(domain string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.chiefs[domain]; !exists {
		return
	}
	delete(r.chiefs, domain)
	delete(r.contexts, domain)
	for i, d := range r.order {
		if d == domain {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get retrieves a chief by domain name.
// Returns nil if the domain is not registered.
func (r *ChiefRegistry) Get(domain string) chief.Chief {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chiefs[domain]
}

// Context retrieves the domain context for a registered chief.
// Returns nil if the domain is not registered.
func (r *ChiefRegistry) Context(domain string) *chief.DomainContext {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[domain]
}

// Ordered returns the registered domains in registration order.
func (r *ChiefRegistry) Ordered() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Count returns the number of registered chiefs.
func (r *ChiefRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chiefs)
}
