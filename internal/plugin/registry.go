package plugin

import (
	"fmt"
	"sync"

	"github.com/good-yellow-bee/flare/internal/models"
)

// Scope restricts a plugin to alerts from certain environments or services.
// Empty lists are wildcards.
type Scope struct {
	Environments []string `yaml:"environments"`
	Services     []string `yaml:"services"`
}

func (s Scope) covers(a *models.Alert) bool {
	if len(s.Environments) > 0 && !containsString(s.Environments, a.Environment) {
		return false
	}
	if len(s.Services) > 0 && !intersects(s.Services, a.Service) {
		return false
	}
	return true
}

// Registry holds named plugins and the configured execution order. It is
// safe for concurrent use; registration normally happens once at startup.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	scopes  map[string]Scope
	order   []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		scopes:  make(map[string]Scope),
	}
}

// Register adds a plugin under its own name. Registering the same name twice
// replaces the earlier plugin.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// SetOrder fixes the execution order to the given plugin names. Every name
// must be registered; plugins left out of the order never run.
func (r *Registry) SetOrder(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		if _, ok := r.plugins[name]; !ok {
			return fmt.Errorf("unknown plugin %q in configured order", name)
		}
	}
	r.order = append([]string(nil), names...)
	return nil
}

// SetScope restricts the named plugin to a subset of alerts.
func (r *Registry) SetScope(name string, s Scope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scopes[name] = s
}

// Routing returns the plugins that apply to the alert, in configured order.
func (r *Registry) Routing(a *models.Alert) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var routed []Plugin
	for _, name := range r.order {
		p, ok := r.plugins[name]
		if !ok {
			continue
		}
		if scope, ok := r.scopes[name]; ok && !scope.covers(a) {
			continue
		}
		routed = append(routed, p)
	}
	return routed
}

func containsString(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
