package router

import (
	"errors"
	"fmt"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
)

// ErrInvalidOverride is returned when an override names a provider or model
// that cannot serve requests.
var ErrInvalidOverride = errors.New("invalid override")

// Catalog is the read side of the provider registry used for routing.
type Catalog interface {
	ListEnabledProviders() []providers.Provider
	Preference(name string) string
}

// Override pins a request to a provider, a model, or both.
type Override struct {
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// Request carries the fields routing depends on.
type Request struct {
	Override        *Override
	EstimatedTokens int64
}

// Candidate is one (provider, model) pair to try.
type Candidate struct {
	Provider providers.Provider
	Model    providers.Model
}

// Router orders candidates for a request. It holds no mutable state.
type Router struct {
	catalog Catalog
}

// New creates a router over catalog.
func New(catalog Catalog) *Router {
	return &Router{catalog: catalog}
}

// Route returns the candidates to try, in order. An override yields exactly
// one candidate. Without one, every enabled provider contributes one
// candidate in priority order. No enabled providers yields an empty slice.
func (r *Router) Route(req Request) ([]Candidate, error) {
	enabled := r.catalog.ListEnabledProviders()

	if req.Override != nil && (req.Override.Provider != "" || req.Override.Model != "") {
		c, err := r.resolveOverride(enabled, *req.Override, req.EstimatedTokens)
		if err != nil {
			return nil, err
		}
		return []Candidate{c}, nil
	}

	out := make([]Candidate, 0, len(enabled))
	for _, p := range enabled {
		m, ok := r.pick(p, req.EstimatedTokens)
		if !ok {
			continue
		}
		out = append(out, Candidate{Provider: p, Model: m})
	}
	return out, nil
}

func (r *Router) resolveOverride(enabled []providers.Provider, o Override, tokens int64) (Candidate, error) {
	if o.Provider == "" {
		for _, p := range enabled {
			if m, ok := p.Model(o.Model); ok {
				return Candidate{Provider: p, Model: m}, nil
			}
		}
		return Candidate{}, fmt.Errorf("%w: no enabled provider serves model %q", ErrInvalidOverride, o.Model)
	}

	for _, p := range enabled {
		if p.Name != o.Provider {
			continue
		}
		if o.Model == "" {
			m, ok := r.pick(p, tokens)
			if !ok {
				return Candidate{}, fmt.Errorf("%w: provider %q has no models", ErrInvalidOverride, o.Provider)
			}
			return Candidate{Provider: p, Model: m}, nil
		}
		m, ok := p.Model(o.Model)
		if !ok {
			return Candidate{}, fmt.Errorf("%w: provider %q has no model %q", ErrInvalidOverride, o.Provider, o.Model)
		}
		return Candidate{Provider: p, Model: m}, nil
	}
	return Candidate{}, fmt.Errorf("%w: provider %q is unknown or disabled", ErrInvalidOverride, o.Provider)
}

// pick returns the provider's preferred model, or selects one automatically.
func (r *Router) pick(p providers.Provider, tokens int64) (providers.Model, bool) {
	if pref := r.catalog.Preference(p.Name); pref != providers.AutoModel {
		if m, ok := p.Model(pref); ok {
			return m, true
		}
	}
	return SelectAuto(p.Models, tokens)
}

// SelectAuto picks the cheapest model whose context window fits tokens.
// A zero context window is treated as unbounded. When no model fits, the
// cheapest model overall is returned. Ties keep declaration order.
func SelectAuto(models []providers.Model, tokens int64) (providers.Model, bool) {
	if len(models) == 0 {
		return providers.Model{}, false
	}

	var best, cheapest *providers.Model
	for i := range models {
		m := &models[i]
		if cheapest == nil || m.CostPer1K < cheapest.CostPer1K {
			cheapest = m
		}
		if m.ContextWindow > 0 && int64(m.ContextWindow) < tokens {
			continue
		}
		if best == nil || m.CostPer1K < best.CostPer1K {
			best = m
		}
	}
	if best != nil {
		return *best, true
	}
	return *cheapest, true
}
