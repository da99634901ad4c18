package gate

import (
	"fmt"
	"sort"
)

// Registry holds the configured gates by name.
type Registry struct {
	gates map[string]*Gate
}

// NewRegistry builds one gate per spec. Names must be unique.
func NewRegistry(specs []Spec, opts ...Option) (*Registry, error) {
	r := &Registry{gates: make(map[string]*Gate, len(specs))}
	for _, spec := range specs {
		if _, dup := r.gates[spec.Name]; dup {
			return nil, fmt.Errorf("gate %q is configured twice", spec.Name)
		}
		g, err := New(spec, opts...)
		if err != nil {
			return nil, err
		}
		r.gates[spec.Name] = g
	}
	return r, nil
}

// Get looks up a gate by name.
func (r *Registry) Get(name string) (*Gate, error) {
	if r != nil {
		if g, ok := r.gates[name]; ok {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGate, name)
}

// Names returns the gate names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.gates))
	for name := range r.gates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the gate specs in name order.
func (r *Registry) Specs() []Spec {
	names := r.Names()
	specs := make([]Spec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.gates[name].Spec())
	}
	return specs
}

// Close closes every gate.
func (r *Registry) Close(flush bool) {
	if r == nil {
		return
	}
	for _, g := range r.gates {
		g.Close(flush)
	}
}
