package alerts

import (
	"context"
	"fmt"
)

// AlertLevel indicates how close a budget period is to its limit.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"  // spend crossed the configured threshold
	AlertCritical AlertLevel = "critical" // spend at 95% or more
	AlertExceeded AlertLevel = "exceeded" // spend at or over the limit
)

// Rank orders levels so callers can tell whether a level has escalated.
// The zero level ranks lowest.
func (l AlertLevel) Rank() int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	case AlertExceeded:
		return 3
	}
	return 0
}

// Alert describes a budget period crossing a spend threshold.
type Alert struct {
	Level        AlertLevel `json:"level"`
	Period       string     `json:"period"`
	SpendUSD     float64    `json:"spend_usd"`
	LimitUSD     float64    `json:"limit_usd"`
	UsagePct     float64    `json:"usage_pct"`
	ThresholdPct float64    `json:"threshold_pct"`
	Outstanding  int        `json:"outstanding_reservations"`
	Message      string     `json:"message"`
}

// Title is the one-line summary used by chat notifiers.
func (a Alert) Title() string {
	return fmt.Sprintf("LLM gateway %s budget %s", a.Period, a.Level)
}

// Notifier delivers alerts to an external system.
type Notifier interface {
	Name() string

	// Send delivers an alert. Implementations must be safe for concurrent use.
	Send(ctx context.Context, alert Alert) error
}
