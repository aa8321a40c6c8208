// Package-level chief policy loading. Policies are plain YAML files,
// one per domain, tuning how a chief maps observations to actions
// without recompiling.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	yaml "go.yaml.in/yaml/v3"
)

// ChiefPolicy holds the tunable decision parameters for one chief.
type ChiefPolicy struct {
	// Domain is the chief domain the policy applies to.
	Domain string `yaml:"domain"`
	// Disabled removes the chief from the cycle without unregistering.
	Disabled bool `yaml:"disabled"`
	// TickEvery runs the chief only every Nth tick. Zero or one means
	// every tick.
	TickEvery int `yaml:"tick_every"`
	// Thresholds are named numeric cut-offs the chief's decision
	// cascade compares observation features against.
	Thresholds map[string]float64 `yaml:"thresholds"`
	// Parameters are free-form action parameters the chief may attach.
	Parameters map[string]any `yaml:"parameters"`
}

// Threshold returns the named threshold, or the fallback when unset.
func (p *ChiefPolicy) Threshold(name string, fallback float64) float64 {
	if p == nil {
		return fallback
	}
	if v, ok := p.Thresholds[name]; ok {
		return v
	}
	return fallback
}

// Active reports whether the chief should run on the given tick.
func (p *ChiefPolicy) Active(tick uint64) bool {
	if p == nil {
		return true
	}
	if p.Disabled {
		return false
	}
	if p.TickEvery <= 1 {
		return true
	}
	return tick%uint64(p.TickEvery) == 0
}

// PolicySet is a concurrency-safe collection of chief policies keyed
// by domain. A missing domain yields a nil policy, which behaves as
// "always active, no thresholds".
type PolicySet struct {
	mu       sync.RWMutex
	policies map[string]*ChiefPolicy
}

// NewPolicySet creates an empty policy set.
func NewPolicySet() *PolicySet {
	return &PolicySet{policies: make(map[string]*ChiefPolicy)}
}

// Get returns the policy for a domain, or nil when none is loaded.
func (s *PolicySet) Get(domain string) *ChiefPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policies[domain]
}

// Put installs or replaces the policy for its domain.
func (s *PolicySet) Put(p *ChiefPolicy) {
	if p == nil || p.Domain == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[p.Domain] = p
}

// Domains returns the domains with a loaded policy.
func (s *PolicySet) Domains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	domains := make([]string, 0, len(s.policies))
	for d := range s.policies {
		domains = append(domains, d)
	}
	return domains
}

// ReplaceAll swaps the entire set atomically.
func (s *PolicySet) ReplaceAll(policies map[string]*ChiefPolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = policies
}

// LoadPolicies reads every *.yaml file in dir into a policy set. A
// file without an explicit domain field takes its domain from the
// file name. A missing directory yields an empty set, not an error.
func LoadPolicies(dir string) (*PolicySet, error) {
	set := NewPolicySet()
	if dir == "" {
		return set, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return set, nil
		}
		return nil, fmt.Errorf("reading policies dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		policy, err := loadPolicyFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		set.Put(policy)
	}
	return set, nil
}

// loadPolicyFile parses one policy YAML file.
func loadPolicyFile(path string) (*ChiefPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy %s: %w", path, err)
	}

	policy := &ChiefPolicy{}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("parsing policy %s: %w", path, err)
	}
	if policy.Domain == "" {
		base := filepath.Base(path)
		policy.Domain = strings.TrimSuffix(strings.TrimSuffix(base, ".yaml"), ".yml")
	}
	return policy, nil
}

// isYAMLFile reports whether the file name has a YAML extension.
func isYAMLFile(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}
