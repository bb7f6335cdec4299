package provider

import "github.com/rotisserie/eris"

// Registry maps provider names to their implementations. Registration order
// is the fetch priority: when two providers report the same place, the
// earlier-registered provider's record wins.
type Registry struct {
	providers map[string]Provider
	order     []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider. Names must be unique.
func (r *Registry) Register(p Provider) error {
	name := p.Name()
	if _, ok := r.providers[name]; ok {
		return eris.Errorf("provider: %q already registered", name)
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Errorf("provider: unknown provider %q", name)
	}
	return p, nil
}

// All returns every provider in registration order.
func (r *Registry) All() []Provider {
	result := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.providers[name])
	}
	return result
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Len returns the number of registered providers.
func (r *Registry) Len() int {
	return len(r.order)
}
