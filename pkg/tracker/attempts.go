package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/storage"
)

// AttemptLog records routing attempts and answers reporting queries over them.
type AttemptLog struct {
	storage storage.Storage
	logger  *slog.Logger
}

// NewAttemptLog creates an attempt log backed by store.
func NewAttemptLog(store storage.Storage, logger *slog.Logger) *AttemptLog {
	return &AttemptLog{
		storage: store,
		logger:  logger,
	}
}

// Record persists one attempt.
func (l *AttemptLog) Record(ctx context.Context, attempt *RoutingAttempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.New().String()
	}
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now()
	}

	if err := l.storage.RecordAttempt(ctx, attempt); err != nil {
		return fmt.Errorf("store attempt: %w", err)
	}

	l.logger.Debug("attempt recorded",
		"request_id", attempt.RequestID,
		"provider", attempt.Provider,
		"model", attempt.Model,
		"outcome", attempt.Outcome,
		"cost_usd", attempt.CostUSD,
	)
	return nil
}

// Query returns individual attempts for the given filter.
func (l *AttemptLog) Query(ctx context.Context, filter AttemptFilter) ([]RoutingAttempt, error) {
	return l.storage.QueryAttempts(ctx, filter)
}

// Report generates a summary for the given filter.
func (l *AttemptLog) Report(ctx context.Context, filter AttemptFilter) (*AttemptSummary, error) {
	return l.storage.AggregateAttempts(ctx, filter)
}

// PeriodSpend sums the cost of successful attempts in the day and month
// containing now.
func (l *AttemptLog) PeriodSpend(ctx context.Context, now time.Time) (today, month float64, err error) {
	for _, p := range []struct {
		period BudgetPeriod
		out    *float64
	}{
		{PeriodDaily, &today},
		{PeriodMonthly, &month},
	} {
		start, end := model.PeriodBounds(p.period, now)
		summary, err := l.storage.AggregateAttempts(ctx, AttemptFilter{
			Outcome:   model.OutcomeSuccess,
			StartTime: start,
			EndTime:   end,
		})
		if err != nil {
			return 0, 0, fmt.Errorf("sum %s spend: %w", p.period, err)
		}
		*p.out = summary.TotalCostUSD
	}
	return today, month, nil
}

// RestoreBudget loads the current period's persisted spend into b.
func (l *AttemptLog) RestoreBudget(ctx context.Context, b *BudgetTracker, now time.Time) error {
	today, month, err := l.PeriodSpend(ctx, now)
	if err != nil {
		return err
	}
	b.Restore(today, month)

	l.logger.Info("budget restored from attempt log",
		"spent_today_usd", today,
		"spent_month_usd", month,
	)
	return nil
}
