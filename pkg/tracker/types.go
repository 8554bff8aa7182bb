package tracker

import "github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"

// Re-export types from model package for convenience.
type (
	RoutingAttempt = model.RoutingAttempt
	AttemptFilter  = model.AttemptFilter
	AttemptSummary = model.AttemptSummary
	BudgetPeriod   = model.BudgetPeriod
	Outcome        = model.Outcome
)

const (
	PeriodDaily   = model.PeriodDaily
	PeriodMonthly = model.PeriodMonthly
)

// PeriodBounds wraps model.PeriodBounds.
var PeriodBounds = model.PeriodBounds
