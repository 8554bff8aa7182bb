package providers

import (
	"fmt"
	"slices"
	"sort"
)

// Registry is the validated, read-only provider catalog. It is built once at
// startup and never mutated, so it is safe for concurrent use without locks.
type Registry struct {
	providers []Provider // registration order
	enabled   []Provider // priority ascending, ties in registration order
	index     map[string]int
	prefs     map[string]string
	budget    BudgetLimits
	strategy  string
}

// NewRegistry validates the catalog and builds a registry from it.
// The catalog is copied; later changes to it do not affect the registry.
func NewRegistry(c *Catalog) (*Registry, error) {
	cp := Catalog{
		Providers:               make([]Provider, len(c.Providers)),
		Budget:                  c.Budget,
		FallbackStrategy:        c.FallbackStrategy,
		DefaultModelPreferences: make(map[string]string, len(c.DefaultModelPreferences)),
	}
	for i, p := range c.Providers {
		p.Models = slices.Clone(p.Models)
		cp.Providers[i] = p
	}
	for k, v := range c.DefaultModelPreferences {
		cp.DefaultModelPreferences[k] = v
	}

	if err := validateCatalog(&cp); err != nil {
		return nil, err
	}
	if cp.FallbackStrategy == "" {
		cp.FallbackStrategy = StrategyPriorityOrder
	}

	r := &Registry{
		providers: cp.Providers,
		index:     make(map[string]int, len(cp.Providers)),
		prefs:     cp.DefaultModelPreferences,
		budget:    cp.Budget,
		strategy:  cp.FallbackStrategy,
	}
	for i, p := range cp.Providers {
		r.index[p.Name] = i
		if p.Enabled {
			r.enabled = append(r.enabled, p)
		}
	}
	sort.SliceStable(r.enabled, func(i, j int) bool {
		return r.enabled[i].Priority < r.enabled[j].Priority
	})
	return r, nil
}

// LoadRegistry reads a catalog file and builds a registry from it.
func LoadRegistry(path string) (*Registry, error) {
	c, err := LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	r, err := NewRegistry(c)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return r, nil
}

// ListEnabledProviders returns enabled providers sorted by ascending priority.
// Providers with equal priority keep their registration order.
func (r *Registry) ListEnabledProviders() []Provider {
	return slices.Clone(r.enabled)
}

// ModelsFor returns a provider's models with the configured preference first,
// followed by the remaining models in declaration order. Unknown providers
// have no models.
func (r *Registry) ModelsFor(name string) []Model {
	i, ok := r.index[name]
	if !ok {
		return nil
	}
	models := r.providers[i].Models
	pref := r.prefs[name]

	out := make([]Model, 0, len(models))
	preferred := false
	if pref != "" && pref != AutoModel {
		if m, ok := r.providers[i].Model(pref); ok {
			out = append(out, m)
			preferred = true
		}
	}
	for _, m := range models {
		if preferred && m.Name == pref {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	i, ok := r.index[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return r.providers[i], nil
}

// All returns every provider, enabled or not, in registration order.
func (r *Registry) All() []Provider {
	return slices.Clone(r.providers)
}

// Preference returns the configured default model for a provider, or AutoModel.
func (r *Registry) Preference(name string) string {
	if pref := r.prefs[name]; pref != "" {
		return pref
	}
	return AutoModel
}

// Budget returns the configured global spend caps.
func (r *Registry) Budget() BudgetLimits { return r.budget }

// Strategy returns the fallback strategy name.
func (r *Registry) Strategy() string { return r.strategy }
