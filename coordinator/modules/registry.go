package modules

import (
	"fmt"
	"strings"
)

// Constructor builds a fresh module bound to mctx. The module has no address until
// Configure or a factory update resolves one; mctx may be nil.
type Constructor func(mctx *Context) Module

// Registry maps module names to constructors, in registration order.
type Registry struct {
	names []string
	ctors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a module constructor. Names must be unique.
func (r *Registry) Register(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return fmt.Errorf("module name and constructor are required")
	}
	if _, exists := r.ctors[name]; exists {
		return fmt.Errorf("module %q already registered", name)
	}
	r.names = append(r.names, name)
	r.ctors[name] = ctor
	return nil
}

// MustRegister is Register that panics on error, for static registration.
func (r *Registry) MustRegister(name string, ctor Constructor) *Registry {
	if err := r.Register(name, ctor); err != nil {
		panic(err)
	}
	return r
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Build constructs the enabled modules in registration order, bound to mctx.
// An empty enabled list selects every registered module.
func (r *Registry) Build(enabled []string, mctx *Context) ([]Module, error) {
	want := make(map[string]bool, len(enabled))
	var unknown []string
	for _, name := range enabled {
		if _, ok := r.ctors[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		want[name] = true
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown modules: %s (registered: %s)",
			strings.Join(unknown, ", "), strings.Join(r.names, ", "))
	}

	var out []Module
	for _, name := range r.names {
		if len(enabled) > 0 && !want[name] {
			continue
		}
		out = append(out, r.ctors[name](mctx))
	}
	return out, nil
}
