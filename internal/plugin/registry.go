package plugin

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mattjoyce/dconnect-gw/internal/profile"
	"github.com/mattjoyce/dconnect-gw/internal/protocol"
)

// Registry holds the built-in profile modules and the registered device plugins.
// It is populated at startup and only read while serving.
type Registry struct {
	mu       sync.RWMutex
	modules  []profile.Module
	builtins []profile.Descriptor
	plugins  map[string]*Registration
	order    []string
}

// NewRegistry creates a registry with the given built-in modules, in order.
func NewRegistry(modules ...profile.Module) *Registry {
	r := &Registry{
		plugins: make(map[string]*Registration),
	}
	for _, m := range modules {
		r.AddModule(m)
	}
	return r
}

// AddModule appends a built-in module. Its descriptors are matched after those
// of previously added modules.
func (r *Registry) AddModule(m profile.Module) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules = append(r.modules, m)
	r.builtins = append(r.builtins, m.Descriptors()...)
}

// Add registers a plugin.
func (r *Registry) Add(reg *Registration) error {
	if reg == nil || reg.ID == "" {
		return fmt.Errorf("plugin id is required")
	}
	if reg.EntryPoint == nil {
		return fmt.Errorf("plugin %q has no entry point", reg.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[reg.ID]; exists {
		return fmt.Errorf("plugin %q already registered", reg.ID)
	}
	r.plugins[reg.ID] = reg
	r.order = append(r.order, reg.ID)
	return nil
}

// Get retrieves a plugin by id.
func (r *Registry) Get(id string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.plugins[id]
	return reg, ok
}

// All returns the registered plugins in registration order.
func (r *Registry) All() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Registration, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.plugins[id])
	}
	return out
}

// Modules returns the built-in modules in registration order.
func (r *Registry) Modules() []profile.Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]profile.Module(nil), r.modules...)
}

// ResolveBuiltin returns the first built-in descriptor addressed by req.
func (r *Registry) ResolveBuiltin(req *protocol.Request) (profile.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, d := range r.builtins {
		if d.Matches(req) {
			return d, true
		}
	}
	return profile.Descriptor{}, false
}

// ResolvePlugin looks up a plugin by id.
func (r *Registry) ResolvePlugin(id string) (*Registration, bool) {
	return r.Get(id)
}

// ShutdownAll calls OnDestroy on every module and plugin that implements
// Destroyer. A failing hook does not stop the others; all failures are
// returned joined.
func (r *Registry) ShutdownAll() error {
	r.mu.RLock()
	var targets []destroyTarget
	for _, m := range r.modules {
		if d, ok := m.(Destroyer); ok {
			targets = append(targets, destroyTarget{kind: "module", name: m.Name(), d: d})
		}
	}
	for _, id := range r.order {
		if d, ok := r.plugins[id].EntryPoint.(Destroyer); ok {
			targets = append(targets, destroyTarget{kind: "plugin", name: id, d: d})
		}
	}
	r.mu.RUnlock()

	var errs []error
	for _, t := range targets {
		if err := t.destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type destroyTarget struct {
	kind string
	name string
	d    Destroyer
}

func (t destroyTarget) destroy() (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s %q: OnDestroy panicked: %v", t.kind, t.name, rec)
		}
	}()
	if err := t.d.OnDestroy(); err != nil {
		return fmt.Errorf("%s %q: %w", t.kind, t.name, err)
	}
	return nil
}
