package workflow

import (
	"fmt"
	"sort"
	"sync"
)

// Definition describes how documents of one domain move through their lifecycle.
type Definition struct {
	Name             string
	Table            TransitionTable
	Guards           *GuardEvaluator
	RequiresApproval bool
}

// NewDefinition builds a definition on the standard table with the named guards
func NewDefinition(name string, requiresApproval bool, guardNames ...string) (*Definition, error) {
	if name == "" {
		return nil, fmt.Errorf("domain name cannot be empty")
	}
	guards := make([]Guard, 0, len(guardNames))
	for _, n := range guardNames {
		g, err := GuardByName(n)
		if err != nil {
			return nil, fmt.Errorf("domain %s: %w", name, err)
		}
		guards = append(guards, g)
	}
	return &Definition{
		Name:             name,
		Table:            StandardTable(),
		Guards:           NewGuardEvaluator(guards...),
		RequiresApproval: requiresApproval,
	}, nil
}

// Registry holds the domain definitions known to the state machine
type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

// NewRegistry creates a registry holding defs
func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{definitions: make(map[string]*Definition)}
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a definition
func (r *Registry) Register(def *Definition) error {
	if def == nil || def.Name == "" {
		return fmt.Errorf("domain definition must have a name")
	}
	if err := def.Table.Validate(); err != nil {
		return fmt.Errorf("domain %s: %w", def.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.definitions[def.Name] = def
	return nil
}

// Get returns the definition for domain or an UNKNOWN_DOMAIN error
func (r *Registry) Get(domain string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[domain]
	if !ok {
		return nil, NewUnknownDomain(domain)
	}
	return def, nil
}

// Names returns registered domain names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.definitions))
	for n := range r.definitions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
