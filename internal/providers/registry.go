package providers

import (
	"fmt"
	"sort"

	apperrors "github.com/talkingphoto/pipeline/internal/errors"
)

// Registry holds the configured provider fleet. It is built once at startup
// and read-only afterwards.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds a registry from the given providers. Names come from
// each provider's descriptor and must be unique.
func NewRegistry(list ...Provider) (*Registry, error) {
	if len(list) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	m := make(map[string]Provider, len(list))
	for _, p := range list {
		name := p.Descriptor().Name
		if name == "" {
			return nil, fmt.Errorf("provider with empty name")
		}
		if _, dup := m[name]; dup {
			return nil, fmt.Errorf("duplicate provider %q", name)
		}
		m[name] = p
	}
	return &Registry{providers: m}, nil
}

// MustNewRegistry builds a registry and panics on error.
func MustNewRegistry(list ...Provider) *Registry {
	r, err := NewRegistry(list...)
	if err != nil {
		panic(err) //nolint:forbidigo // fail fast on invalid startup wiring
	}
	return r
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, apperrors.NotFoundf("provider %q is not configured", name)
	}
	return p, nil
}

// Names returns all configured provider names, sorted for determinism.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors returns the descriptors of all configured providers, sorted by
// name for determinism.
func (r *Registry) Descriptors() []Descriptor {
	descs := make([]Descriptor, 0, len(r.providers))
	for _, name := range r.Names() {
		descs = append(descs, r.providers[name].Descriptor())
	}
	return descs
}

// DescriptorsExcept returns descriptors for every provider except the named
// ones. Used to build fallback candidate lists.
func (r *Registry) DescriptorsExcept(exclude ...string) []Descriptor {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	var descs []Descriptor
	for _, name := range r.Names() {
		if skip[name] {
			continue
		}
		descs = append(descs, r.providers[name].Descriptor())
	}
	return descs
}
