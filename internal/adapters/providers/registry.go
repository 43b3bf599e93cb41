package providers

import "reviewpulse/internal/domain"

// Registry maps a source's provider tag to its adapter.
type Registry struct {
	m map[domain.ProviderType]domain.ProviderAdapter
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[domain.ProviderType]domain.ProviderAdapter)}
}

func (r *Registry) Register(t domain.ProviderType, a domain.ProviderAdapter) {
	r.m[t] = a
}

func (r *Registry) Adapter(t domain.ProviderType) (domain.ProviderAdapter, bool) {
	a, ok := r.m[t]
	return a, ok
}
