package remote

import (
	"fmt"
	"sort"
	"sync"

	"hitlbot/internal/agent"
)

// Registry resolves agents by the name carried in approval identities.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]agent.Agent
}

// NewRegistry creates a registry holding agents keyed by Name().
func NewRegistry(agents ...agent.Agent) *Registry {
	r := &Registry{agents: make(map[string]agent.Agent, len(agents))}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an agent.
func (r *Registry) Register(a agent.Agent) {
	if a == nil {
		return
	}
	r.mu.Lock()
	r.agents[a.Name()] = a
	r.mu.Unlock()
}

// Get returns the agent registered under name.
func (r *Registry) Get(name string) (agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent %q", name)
	}
	return a, nil
}

// Names lists the registered agent names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
