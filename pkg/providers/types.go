package providers

import "time"

// ProviderType selects the adapter used to talk to a provider.
type ProviderType string

const (
	TypeOpenAI    ProviderType = "openai"
	TypeAnthropic ProviderType = "anthropic"
	TypeLocal     ProviderType = "local" // OpenAI-compatible server, e.g. Ollama or vLLM
)

// Known reports whether t is a supported provider type.
func (t ProviderType) Known() bool {
	switch t {
	case TypeOpenAI, TypeAnthropic, TypeLocal:
		return true
	}
	return false
}

// Cloud reports whether the provider type requires an API key.
func (t ProviderType) Cloud() bool {
	return t == TypeOpenAI || t == TypeAnthropic
}

// AutoModel is the preference marker that lets the router pick a model per request.
const AutoModel = "auto"

// StrategyPriorityOrder is the only supported fallback strategy.
const StrategyPriorityOrder = "priority_order"

// DefaultTimeout applies when a provider does not configure one.
const DefaultTimeout = 30 * time.Second

// Model is a single model offered by a provider. Values are immutable after load.
type Model struct {
	Name          string  `yaml:"-" json:"name" validate:"required"`
	CostPer1K     float64 `yaml:"cost_per_1k_tokens" json:"cost_per_1k_tokens" validate:"gte=0"`
	MaxTokens     int     `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`
	ContextWindow int     `yaml:"context_window" json:"context_window" validate:"gte=0"`
}

// EstimateCost returns the USD cost of the given number of tokens.
func (m Model) EstimateCost(tokens int64) float64 {
	if tokens <= 0 {
		return 0
	}
	return m.CostPer1K * float64(tokens) / 1000
}

// RateLimit bounds requests per rolling 60 second window. Zero means unlimited.
type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute" validate:"gte=0"`
}

// Provider is a configured LLM backend.
type Provider struct {
	Name      string        `json:"name" validate:"required"`
	Type      ProviderType  `json:"type"`
	Enabled   bool          `json:"enabled"`
	Priority  int           `json:"priority"`
	APIKey    string        `json:"-"`
	BaseURL   string        `json:"base_url,omitempty" validate:"omitempty,url"`
	Timeout   time.Duration `json:"timeout"`
	RateLimit RateLimit     `json:"rate_limit"`
	Models    []Model       `json:"models"`
}

// Model looks up a model by name.
func (p Provider) Model(name string) (Model, bool) {
	for _, m := range p.Models {
		if m.Name == name {
			return m, true
		}
	}
	return Model{}, false
}

// BudgetLimits are the global spend caps in USD. Zero means no cap.
type BudgetLimits struct {
	DailyLimit   float64 `yaml:"daily_limit" json:"daily_limit" validate:"gte=0"`
	MonthlyLimit float64 `yaml:"monthly_limit" json:"monthly_limit" validate:"gte=0"`
}

// Catalog is the parsed provider configuration document.
type Catalog struct {
	Providers               []Provider
	Budget                  BudgetLimits
	FallbackStrategy        string
	DefaultModelPreferences map[string]string
}
