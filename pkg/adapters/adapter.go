package adapters

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
)

// Completion is the result of a single provider call.
type Completion struct {
	Text       string `json:"text"`
	TokensUsed int64  `json:"tokens_used"`
}

// Adapter performs one completion call against a provider. The call must
// honour ctx cancellation and deadline. Implementations must be safe for
// concurrent use.
type Adapter interface {
	Complete(ctx context.Context, model, prompt string, maxTokens int) (Completion, error)
}

// Kind classifies adapter failures.
type Kind string

const (
	KindTimeout               Kind = "timeout"
	KindUnauthorized          Kind = "unauthorized"
	KindRateLimitedByProvider Kind = "rate_limited_by_provider"
	KindMalformed             Kind = "malformed"
	KindUnavailable           Kind = "unavailable"
)

// Error is returned by adapters for every failed call.
type Error struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of an adapter error, or "" if err is not one.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// kindForStatus maps an HTTP status returned by a provider to an error kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusTooManyRequests:
		return KindRateLimitedByProvider
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 400 && status < 500:
		return KindMalformed
	default:
		return KindUnavailable
	}
}

// transportError wraps a failure that happened before a status was read.
func transportError(ctx context.Context, provider string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Provider: provider, Kind: KindTimeout, Err: err}
	}
	return &Error{Provider: provider, Kind: KindUnavailable, Err: err}
}

// Option configures adapters built by New.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient sets the client used for provider calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// New builds the adapter matching the provider's type.
func New(p providers.Provider, opts ...Option) (Adapter, error) {
	o := options{httpClient: &http.Client{}}
	for _, opt := range opts {
		opt(&o)
	}

	switch p.Type {
	case providers.TypeOpenAI, providers.TypeLocal:
		return NewOpenAI(p, o.httpClient), nil
	case providers.TypeAnthropic:
		return NewAnthropic(p, o.httpClient), nil
	default:
		return nil, fmt.Errorf("provider %s: no adapter for type %q", p.Name, p.Type)
	}
}

// NewSet builds adapters for every provider, keyed by provider name.
func NewSet(list []providers.Provider, opts ...Option) (map[string]Adapter, error) {
	set := make(map[string]Adapter, len(list))
	for _, p := range list {
		a, err := New(p, opts...)
		if err != nil {
			return nil, err
		}
		set[p.Name] = a
	}
	return set, nil
}
