package providers

import (
	"errors"
	"fmt"
)

// ConfigErrorKind categorizes catalog failures.
type ConfigErrorKind string

const (
	KindParse               ConfigErrorKind = "parse"
	KindInvalidField        ConfigErrorKind = "invalid_field"
	KindDuplicate           ConfigErrorKind = "duplicate"
	KindUnknownType         ConfigErrorKind = "unknown_type"
	KindUnknownProvider     ConfigErrorKind = "unknown_provider"
	KindUnknownModel        ConfigErrorKind = "unknown_model"
	KindMissingConnection   ConfigErrorKind = "missing_connection"
	KindUnsupportedStrategy ConfigErrorKind = "unsupported_strategy"
)

// ConfigError reports a malformed or inconsistent provider catalog.
type ConfigError struct {
	Kind     ConfigErrorKind
	Provider string
	Field    string
	Message  string
	Err      error
}

func (e *ConfigError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Provider != "" {
		msg = fmt.Sprintf("provider %q: %s", e.Provider, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "config error (" + string(e.Kind) + "): " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Is matches another *ConfigError of the same kind, so the sentinels below
// work with errors.Is.
func (e *ConfigError) Is(target error) bool {
	t, ok := target.(*ConfigError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnsupportedStrategy = &ConfigError{Kind: KindUnsupportedStrategy, Message: "unsupported fallback strategy"}
	ErrUnknownModel        = &ConfigError{Kind: KindUnknownModel, Message: "unknown model"}
	ErrMissingConnection   = &ConfigError{Kind: KindMissingConnection, Message: "missing connection info"}
	ErrInvalidField        = &ConfigError{Kind: KindInvalidField, Message: "invalid field"}

	// ErrProviderNotFound is returned by lookups for names not in the catalog.
	ErrProviderNotFound = errors.New("provider not found")
)
