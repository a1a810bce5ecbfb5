package policy

import (
	"fmt"

	"github.com/eliteGoblin/focusd/reaper/internal/domain"
)

// Registry holds the detection rules the daemon enforces.
// Rules keep registration order; names are unique.
type Registry struct {
	rules []domain.DetectionRule
	index map[string]int
}

// NewRegistry creates a registry from the configured rules.
// A later rule with an already registered name replaces the earlier one.
func NewRegistry(rules ...domain.DetectionRule) *Registry {
	r := &Registry{
		index: make(map[string]int),
	}
	for _, rule := range rules {
		r.Register(rule)
	}
	return r
}

// Register adds or replaces a rule.
func (r *Registry) Register(rule domain.DetectionRule) {
	if i, ok := r.index[rule.Name]; ok {
		r.rules[i] = rule
		return
	}
	r.index[rule.Name] = len(r.rules)
	r.rules = append(r.rules, rule)
}

// Get returns a rule by name.
func (r *Registry) Get(name string) (domain.DetectionRule, bool) {
	i, ok := r.index[name]
	if !ok {
		return domain.DetectionRule{}, false
	}
	return r.rules[i], true
}

// GetAll returns a copy of all rules in registration order.
func (r *Registry) GetAll() []domain.DetectionRule {
	result := make([]domain.DetectionRule, len(r.rules))
	copy(result, r.rules)
	return result
}

// Enabled returns only the rules that can match.
func (r *Registry) Enabled() []domain.DetectionRule {
	result := make([]domain.DetectionRule, 0, len(r.rules))
	for _, rule := range r.rules {
		if rule.Enabled {
			result = append(result, rule)
		}
	}
	return result
}

// List returns all rule names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, rule.Name)
	}
	return names
}

// RegistryRuleStore adapts Registry to implement domain.RuleStore interface.
type RegistryRuleStore struct {
	registry *Registry
}

// NewRuleStore creates a RuleStore backed by a registry of the given rules.
func NewRuleStore(rules ...domain.DetectionRule) domain.RuleStore {
	return &RegistryRuleStore{registry: NewRegistry(rules...)}
}

// NewRuleStoreFromRegistry wraps an existing registry.
func NewRuleStoreFromRegistry(reg *Registry) domain.RuleStore {
	return &RegistryRuleStore{registry: reg}
}

func (s *RegistryRuleStore) GetAll() []domain.DetectionRule {
	return s.registry.GetAll()
}

func (s *RegistryRuleStore) GetByName(name string) (*domain.DetectionRule, error) {
	rule, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrRuleNotFound, name)
	}
	return &rule, nil
}

func (s *RegistryRuleStore) List() []string {
	return s.registry.List()
}

// Ensure RegistryRuleStore implements domain.RuleStore.
var _ domain.RuleStore = (*RegistryRuleStore)(nil)
