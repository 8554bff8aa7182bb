package providers

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads a YAML provider catalog. ${VAR} references are expanded
// from the environment before parsing.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog parses raw YAML catalog data. Provider and model order follow
// the document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var raw catalogFile
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &raw); err != nil {
		return nil, &ConfigError{Kind: KindParse, Message: "parse yaml", Err: err}
	}

	c := &Catalog{
		Providers:               make([]Provider, 0, len(raw.Providers)),
		Budget:                  raw.Budget,
		FallbackStrategy:        raw.FallbackStrategy,
		DefaultModelPreferences: raw.DefaultModelPreferences,
	}
	for _, rp := range raw.Providers {
		c.Providers = append(c.Providers, Provider{
			Name:      rp.name,
			Type:      ProviderType(rp.Type),
			Enabled:   rp.Enabled,
			Priority:  rp.Priority,
			APIKey:    rp.APIKey,
			BaseURL:   rp.BaseURL,
			Timeout:   time.Duration(rp.Timeout * float64(time.Second)),
			RateLimit: rp.RateLimit,
			Models:    []Model(rp.Models),
		})
	}
	return c, nil
}

type catalogFile struct {
	Providers               providerList      `yaml:"providers"`
	Budget                  BudgetLimits      `yaml:"budget"`
	FallbackStrategy        string            `yaml:"fallback_strategy"`
	DefaultModelPreferences map[string]string `yaml:"default_model_preferences"`
}

type providerEntry struct {
	name      string
	Type      string    `yaml:"type"`
	Enabled   bool      `yaml:"enabled"`
	Priority  int       `yaml:"priority"`
	APIKey    string    `yaml:"api_key"`
	BaseURL   string    `yaml:"base_url"`
	Timeout   float64   `yaml:"timeout"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Models    modelList `yaml:"models"`
}

// providerList decodes a YAML mapping while keeping key order.
type providerList []providerEntry

func (l *providerList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: providers must be a mapping of name to provider", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return &ConfigError{Kind: KindDuplicate, Provider: name, Message: "declared more than once"}
		}
		seen[name] = true

		var p providerEntry
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
		p.name = name
		*l = append(*l, p)
	}
	return nil
}

// modelList decodes a YAML mapping of model name to model while keeping key order.
type modelList []Model

func (l *modelList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: models must be a mapping of name to model", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return &ConfigError{Kind: KindDuplicate, Field: "models." + name, Message: "declared more than once"}
		}
		seen[name] = true

		var m Model
		if err := node.Content[i+1].Decode(&m); err != nil {
			return fmt.Errorf("model %q: %w", name, err)
		}
		m.Name = name
		*l = append(*l, m)
	}
	return nil
}
