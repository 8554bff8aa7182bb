package model

import "time"

// Outcome classifies a single routing attempt.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeRateLimited    Outcome = "rate_limited"
	OutcomeBudgetExceeded Outcome = "budget_exceeded"
	OutcomeProviderError  Outcome = "provider_error"
)

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeSuccess, OutcomeRateLimited, OutcomeBudgetExceeded, OutcomeProviderError:
		return true
	}
	return false
}

// RoutingAttempt records one (provider, model) try made while serving a request.
type RoutingAttempt struct {
	ID         string    `json:"id" db:"id"`
	RequestID  string    `json:"request_id" db:"request_id"`
	Provider   string    `json:"provider" db:"provider"`
	Model      string    `json:"model" db:"model"`
	Outcome    Outcome   `json:"outcome" db:"outcome"`
	Reason     string    `json:"reason,omitempty" db:"reason"`
	CostUSD    float64   `json:"cost_usd" db:"cost_usd"`
	TokensUsed int64     `json:"tokens_used" db:"tokens_used"`
	LatencyMs  int64     `json:"latency_ms" db:"latency_ms"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}

// BudgetPeriod names a budget accounting window.
type BudgetPeriod string

const (
	PeriodDaily   BudgetPeriod = "daily"
	PeriodMonthly BudgetPeriod = "monthly"
)

// AttemptFilter controls which attempts are included in queries and reports.
type AttemptFilter struct {
	RequestID string    `json:"request_id,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
	Limit     int       `json:"limit,omitempty"`
}

// AttemptSummary holds aggregated attempt statistics.
type AttemptSummary struct {
	TotalCostUSD float64            `json:"total_cost_usd"`
	TotalTokens  int64              `json:"total_tokens"`
	AttemptCount int64              `json:"attempt_count"`
	ByProvider   map[string]float64 `json:"by_provider,omitempty"`
	ByModel      map[string]float64 `json:"by_model,omitempty"`
	ByOutcome    map[Outcome]int64  `json:"by_outcome,omitempty"`
}

// PeriodBounds returns the [start, end) window of the period containing now,
// in now's location. Budget periods roll over at local midnight.
func PeriodBounds(period BudgetPeriod, now time.Time) (start, end time.Time) {
	loc := now.Location()
	switch period {
	case PeriodMonthly:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, loc)
		end = start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}
