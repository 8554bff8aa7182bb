package gateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoProviderAvailable is returned when routing yields no candidates.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrEmptyPrompt is returned for requests without a prompt.
	ErrEmptyPrompt = errors.New("prompt is required")
)

// Reasons recorded for candidates that were skipped rather than called.
const (
	ReasonRateLimited = "rate limited"
	ReasonNoAdapter   = "no adapter configured"
)

// AttemptReason explains why one candidate did not produce a result.
type AttemptReason struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Reason   string `json:"reason"`
}

// AllProvidersFailedError is returned when every candidate was tried and
// none succeeded. Reasons are in attempt order, one per candidate.
type AllProvidersFailedError struct {
	Reasons []AttemptReason
}

func (e *AllProvidersFailedError) Error() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = fmt.Sprintf("%s/%s: %s", r.Provider, r.Model, r.Reason)
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}
