// Package registry implements the agent registry: a process-wide index
// from event type to subscribed agents, and from agent name to agent
// record.
package registry

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/lucerna-wms/reactor/internal/agent"
)

// Registry is the in-process subscriber index. It is read-only during
// steady state: registration happens once at process start; the
// coarse mutex only guards the rarer register/unregister path so
// AgentsFor stays lock-free-ish under the common case (RLock).
type Registry struct {
	mu       sync.RWMutex
	byName   map[string]agent.Agent
	byType   map[string]map[string]struct{} // event type -> set of agent names
	logger   *slog.Logger
}

// New builds an empty Registry. Pass a logger for the duplicate-
// registration warning: registering a second agent under an existing name
// replaces the prior entry and logs a warning.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		byName: make(map[string]agent.Agent),
		byType: make(map[string]map[string]struct{}),
		logger: logger,
	}
}

// Register adds a to the registry, indexing it under every event type it
// declared plus CatchAll where applicable. Registering a name that already
// exists replaces the prior entry and logs a warning.
func (r *Registry) Register(a agent.Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if _, exists := r.byName[name]; exists {
		r.logger.Warn("agent registration replaces existing entry", slog.String("agent", name))
		r.unlockedUnregister(name)
	}

	r.byName[name] = a
	for _, t := range a.SubscribesTo() {
		if r.byType[t] == nil {
			r.byType[t] = make(map[string]struct{})
		}
		r.byType[t][name] = struct{}{}
	}
}

// Unregister removes name from both indexes. It is a no-op if name is not
// registered.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unlockedUnregister(name)
}

func (r *Registry) unlockedUnregister(name string) {
	a, ok := r.byName[name]
	if !ok {
		return
	}
	for _, t := range a.SubscribesTo() {
		delete(r.byType[t], name)
		if len(r.byType[t]) == 0 {
			delete(r.byType, t)
		}
	}
	delete(r.byName, name)
}

// AgentsFor returns the union of agents subscribed specifically to
// eventType and agents subscribed to the catch-all "*", sorted by name for
// a deterministic batch order.
func (r *Registry) AgentsFor(eventType string) []agent.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for name := range r.byType[eventType] {
		seen[name] = struct{}{}
	}
	for name := range r.byType[agent.CatchAll] {
		seen[name] = struct{}{}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]agent.Agent, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name])
	}
	return out
}

// Get returns the agent registered under name, if any.
func (r *Registry) Get(name string) (agent.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// Names returns every registered agent name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
