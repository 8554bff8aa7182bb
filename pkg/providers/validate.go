package providers

import (
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their YAML names so errors match the catalog file.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return strings.ToLower(f.Name)
		}
		return name
	})
	return v
}

// validateStruct runs tag validation and converts the first failure into a ConfigError.
func validateStruct(provider string, prefix string, s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigError{Kind: KindInvalidField, Provider: provider, Message: "validation failed", Err: err}
	}

	fe := verrs[0]
	field := fe.Field()
	if prefix != "" {
		field = prefix + "." + field
	}
	return &ConfigError{
		Kind:     KindInvalidField,
		Provider: provider,
		Field:    field,
		Message:  fieldMessage(fe),
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s, got %v", fe.Param(), fe.Value())
	case "url":
		return fmt.Sprintf("must be a valid URL, got %q", fe.Value())
	default:
		return fmt.Sprintf("failed on '%s' rule", fe.Tag())
	}
}

// validateCatalog checks every provider, model and preference in the catalog.
func validateCatalog(c *Catalog) error {
	switch c.FallbackStrategy {
	case "", StrategyPriorityOrder:
	default:
		return &ConfigError{
			Kind:    KindUnsupportedStrategy,
			Field:   "fallback_strategy",
			Message: fmt.Sprintf("%q is not supported (only %q)", c.FallbackStrategy, StrategyPriorityOrder),
		}
	}

	if err := validateStruct("", "budget", c.Budget); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if seen[p.Name] {
			return &ConfigError{Kind: KindDuplicate, Provider: p.Name, Message: "declared more than once"}
		}
		seen[p.Name] = true

		if err := validateProvider(p); err != nil {
			return err
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.DefaultModelPreferences)) {
		pref := c.DefaultModelPreferences[name]
		var owner *Provider
		for i := range c.Providers {
			if c.Providers[i].Name == name {
				owner = &c.Providers[i]
				break
			}
		}
		if owner == nil {
			return &ConfigError{
				Kind:    KindUnknownProvider,
				Field:   "default_model_preferences." + name,
				Message: "references a provider that is not declared",
			}
		}
		if pref == "" || pref == AutoModel {
			continue
		}
		if _, ok := owner.Model(pref); !ok {
			return &ConfigError{
				Kind:     KindUnknownModel,
				Provider: name,
				Field:    "default_model_preferences",
				Message:  fmt.Sprintf("model %q is not declared", pref),
			}
		}
	}
	return nil
}

// validateProvider fills defaults and checks a single provider entry.
func validateProvider(p *Provider) error {
	if p.Type == "" && ProviderType(p.Name).Known() {
		p.Type = ProviderType(p.Name)
	}
	if !p.Type.Known() {
		return &ConfigError{
			Kind:     KindUnknownType,
			Provider: p.Name,
			Field:    "type",
			Message:  fmt.Sprintf("%q is not one of openai, anthropic, local", p.Type),
		}
	}
	if p.Timeout < 0 {
		return &ConfigError{Kind: KindInvalidField, Provider: p.Name, Field: "timeout", Message: "must not be negative"}
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}

	if err := validateStruct(p.Name, "", p); err != nil {
		return err
	}

	for _, m := range p.Models {
		if err := validateStruct(p.Name, "models."+m.Name, m); err != nil {
			return err
		}
	}

	if !p.Enabled {
		return nil
	}
	if len(p.Models) == 0 {
		return &ConfigError{Kind: KindInvalidField, Provider: p.Name, Field: "models", Message: "enabled provider declares no models"}
	}
	if p.Type.Cloud() && p.APIKey == "" {
		return &ConfigError{Kind: KindMissingConnection, Provider: p.Name, Field: "api_key", Message: "required for enabled cloud provider"}
	}
	if p.Type == TypeLocal && p.BaseURL == "" {
		return &ConfigError{Kind: KindMissingConnection, Provider: p.Name, Field: "base_url", Message: "required for enabled local provider"}
	}
	return nil
}
