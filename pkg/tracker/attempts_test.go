package tracker_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/storage"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAttemptLog(t *testing.T) *tracker.AttemptLog {
	t.Helper()
	store, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return tracker.NewAttemptLog(store, testLogger())
}

func TestAttemptLog_Record(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()

	attempt := &tracker.RoutingAttempt{
		RequestID:  "req-1",
		Provider:   "openai",
		Model:      "gpt-4o-mini",
		Outcome:    tracker.OutcomeSuccess,
		CostUSD:    0.0003,
		TokensUsed: 2000,
		LatencyMs:  180,
	}
	require.NoError(t, log.Record(ctx, attempt))
	assert.NotEmpty(t, attempt.ID)
	assert.False(t, attempt.Timestamp.IsZero())

	got, err := log.Query(ctx, tracker.AttemptFilter{RequestID: "req-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, attempt.ID, got[0].ID)
	assert.Equal(t, "gpt-4o-mini", got[0].Model)
	assert.Equal(t, int64(2000), got[0].TokensUsed)
}

func TestAttemptLog_Record_InvalidOutcome(t *testing.T) {
	log := newTestAttemptLog(t)

	err := log.Record(context.Background(), &tracker.RoutingAttempt{Provider: "openai", Model: "gpt-4o"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store attempt")
}

func TestAttemptLog_QueryByRequest(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	// One request that fell back from openai to anthropic.
	seq := []*tracker.RoutingAttempt{
		{RequestID: "req-9", Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeRateLimited, Reason: "rate limited", Timestamp: base},
		{RequestID: "req-9", Provider: "anthropic", Model: "claude-3-5-haiku", Outcome: tracker.OutcomeSuccess, CostUSD: 0.001, Timestamp: base.Add(time.Second)},
		{RequestID: "other", Provider: "local", Model: "llama3", Outcome: tracker.OutcomeSuccess, Timestamp: base},
	}
	for _, a := range seq {
		require.NoError(t, log.Record(ctx, a))
	}

	got, err := log.Query(ctx, tracker.AttemptFilter{RequestID: "req-9"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "anthropic", got[0].Provider, "newest first")
	assert.Equal(t, tracker.OutcomeRateLimited, got[1].Outcome)
	assert.Equal(t, "rate limited", got[1].Reason)
}

func TestAttemptLog_Report(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()

	for _, a := range []*tracker.RoutingAttempt{
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeSuccess, CostUSD: 0.02, TokensUsed: 2000},
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeProviderError, Reason: "timeout"},
		{Provider: "anthropic", Model: "claude-3-5-haiku", Outcome: tracker.OutcomeSuccess, CostUSD: 0.01, TokensUsed: 1000},
	} {
		require.NoError(t, log.Record(ctx, a))
	}

	summary, err := log.Report(ctx, tracker.AttemptFilter{})
	require.NoError(t, err)
	assert.InDelta(t, 0.03, summary.TotalCostUSD, 1e-9)
	assert.Equal(t, int64(3000), summary.TotalTokens)
	assert.Equal(t, int64(3), summary.AttemptCount)
	assert.InDelta(t, 0.02, summary.ByProvider["openai"], 1e-9)
	assert.Equal(t, int64(2), summary.ByOutcome[tracker.OutcomeSuccess])
	assert.Equal(t, int64(1), summary.ByOutcome[tracker.OutcomeProviderError])
}

func TestAttemptLog_PeriodSpend(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()

	now := time.Date(2025, 6, 15, 14, 0, 0, 0, time.Local)
	for _, a := range []*tracker.RoutingAttempt{
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeSuccess, CostUSD: 1.00, Timestamp: now.Add(-time.Hour)},
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeSuccess, CostUSD: 2.00, Timestamp: now.AddDate(0, 0, -3)},
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeSuccess, CostUSD: 4.00, Timestamp: now.AddDate(0, -1, 0)},
		{Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeProviderError, CostUSD: 8.00, Timestamp: now.Add(-time.Minute)},
	} {
		require.NoError(t, log.Record(ctx, a))
	}

	today, month, err := log.PeriodSpend(ctx, now)
	require.NoError(t, err)
	assert.InDelta(t, 1.00, today, 1e-9)
	assert.InDelta(t, 3.00, month, 1e-9)
}

func TestAttemptLog_RestoreBudget(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, log.Record(ctx, &tracker.RoutingAttempt{
		Provider: "openai", Model: "gpt-4o", Outcome: tracker.OutcomeSuccess, CostUSD: 0.90, Timestamp: now,
	}))

	b := tracker.NewBudgetTracker(providers.BudgetLimits{DailyLimit: 1.00}, testLogger())
	require.NoError(t, log.RestoreBudget(ctx, b, now))

	assert.InDelta(t, 0.90, b.Snapshot().SpentTodayUSD, 1e-9)
	_, err := b.Reserve(0.20)
	assert.ErrorIs(t, err, tracker.ErrBudgetExceeded)
}

func TestAttemptLog_ReportByPeriod(t *testing.T) {
	log := newTestAttemptLog(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, log.Record(ctx, &tracker.RoutingAttempt{
		Provider: "local", Model: "llama3", Outcome: tracker.OutcomeSuccess, TokensUsed: 10, Timestamp: now,
	}))

	start, end := tracker.PeriodBounds(model.PeriodDaily, now)
	summary, err := log.Report(ctx, tracker.AttemptFilter{StartTime: start, EndTime: end})
	require.NoError(t, err)
	assert.Equal(t, int64(1), summary.AttemptCount)
}
