package tracker_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(_ context.Context, a alerts.Alert) error {
	n.mu.Lock()
	n.alerts = append(n.alerts, a)
	n.mu.Unlock()
	return nil
}

func (n *recordingNotifier) Levels() []alerts.AlertLevel {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]alerts.AlertLevel, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a.Level)
	}
	return out
}

func newTracker(daily, monthly float64, opts ...tracker.Option) *tracker.BudgetTracker {
	return tracker.NewBudgetTracker(providers.BudgetLimits{DailyLimit: daily, MonthlyLimit: monthly}, testLogger(), opts...)
}

func TestBudgetTracker_ReserveWithinLimit(t *testing.T) {
	b := newTracker(1.00, 10.00)

	res, err := b.Reserve(0.25)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.InDelta(t, 0.25, res.AmountUSD, 1e-12)

	state := b.Snapshot()
	assert.InDelta(t, 0.25, state.SpentTodayUSD, 1e-12)
	assert.InDelta(t, 0.25, state.SpentMonthUSD, 1e-12)
	assert.Equal(t, 1, state.Outstanding)
}

func TestBudgetTracker_ReserveExceedsDaily(t *testing.T) {
	b := newTracker(1.00, 0)
	b.Restore(0.95, 0.95)

	_, err := b.Reserve(0.10)
	require.ErrorIs(t, err, tracker.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "daily")

	state := b.Snapshot()
	assert.InDelta(t, 0.95, state.SpentTodayUSD, 1e-12)
	assert.Equal(t, 0, state.Outstanding)

	// Exactly reaching the limit is allowed.
	_, err = b.Reserve(0.05)
	assert.NoError(t, err)
}

func TestBudgetTracker_ReserveExceedsMonthly(t *testing.T) {
	b := newTracker(0, 5.00)
	b.Restore(0, 4.99)

	_, err := b.Reserve(0.02)
	require.ErrorIs(t, err, tracker.ErrBudgetExceeded)
	assert.Contains(t, err.Error(), "monthly")
}

func TestBudgetTracker_NoLimits(t *testing.T) {
	b := newTracker(0, 0)

	for i := 0; i < 100; i++ {
		_, err := b.Reserve(1000)
		require.NoError(t, err)
	}
	assert.InDelta(t, 100000.0, b.Snapshot().SpentTodayUSD, 1e-6)
}

func TestBudgetTracker_ReserveReleaseIsNetZero(t *testing.T) {
	b := newTracker(100, 1000)
	b.Restore(12.345678, 98.7654321)
	before := b.Snapshot()

	amounts := []float64{0.1, 0.2, 0.3, 1e-7, 0.000015, 3.333333333}
	for _, amount := range amounts {
		res, err := b.Reserve(amount)
		require.NoError(t, err)
		require.NoError(t, b.Release(res.ID))
	}

	after := b.Snapshot()
	assert.Equal(t, before.SpentTodayUSD, after.SpentTodayUSD)
	assert.Equal(t, before.SpentMonthUSD, after.SpentMonthUSD)
	assert.Equal(t, 0, after.Outstanding)
}

func TestBudgetTracker_CommitEqualToEstimateMatchesDirectAdd(t *testing.T) {
	reserved := newTracker(10, 100)
	direct := newTracker(10, 100)

	amounts := []float64{0.1, 0.2, 0.000015, 1.75}
	for _, amount := range amounts {
		res, err := reserved.Reserve(amount)
		require.NoError(t, err)
		require.NoError(t, reserved.Commit(res.ID, amount))

		// A reservation committed immediately is the plain add.
		res, err = direct.Reserve(amount)
		require.NoError(t, err)
		require.NoError(t, direct.Commit(res.ID, res.AmountUSD))
	}

	assert.Equal(t, direct.Snapshot().SpentTodayUSD, reserved.Snapshot().SpentTodayUSD)

	fresh := newTracker(10, 100)
	fresh.Restore(0.1+0.2+0.000015+1.75, 0)
	assert.InDelta(t, fresh.Snapshot().SpentTodayUSD, reserved.Snapshot().SpentTodayUSD, 1e-9)
}

func TestBudgetTracker_CommitAdjustsByDelta(t *testing.T) {
	b := newTracker(10, 100)

	res, err := b.Reserve(1.00)
	require.NoError(t, err)
	require.NoError(t, b.Commit(res.ID, 0.40))
	assert.InDelta(t, 0.40, b.Snapshot().SpentTodayUSD, 1e-12)

	res, err = b.Reserve(0.50)
	require.NoError(t, err)
	require.NoError(t, b.Commit(res.ID, 0.75))
	assert.InDelta(t, 1.15, b.Snapshot().SpentTodayUSD, 1e-12)
	assert.InDelta(t, 1.15, b.Snapshot().SpentMonthUSD, 1e-12)
}

func TestBudgetTracker_UnknownReservation(t *testing.T) {
	b := newTracker(10, 100)

	assert.ErrorIs(t, b.Commit("missing", 1), tracker.ErrUnknownReservation)
	assert.ErrorIs(t, b.Release("missing"), tracker.ErrUnknownReservation)

	res, err := b.Reserve(1)
	require.NoError(t, err)
	require.NoError(t, b.Release(res.ID))
	assert.ErrorIs(t, b.Release(res.ID), tracker.ErrUnknownReservation, "double release")
	assert.ErrorIs(t, b.Commit(res.ID, 1), tracker.ErrUnknownReservation, "commit after release")
	assert.Equal(t, 0.0, b.Snapshot().SpentTodayUSD)
}

func TestBudgetTracker_ConcurrentReservesNeverExceedLimit(t *testing.T) {
	b := newTracker(1.00, 0)

	var granted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := b.Reserve(0.03); err == nil {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(33), granted.Load())
	assert.LessOrEqual(t, b.Snapshot().SpentTodayUSD, 1.00)
}

func TestBudgetTracker_ConcurrentReserveRelease(t *testing.T) {
	b := newTracker(0.50, 0)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res, err := b.Reserve(0.05)
				if err != nil {
					assert.LessOrEqual(t, b.Snapshot().SpentTodayUSD, 0.50)
					continue
				}
				_ = b.Release(res.ID)
			}
		}()
	}
	wg.Wait()

	state := b.Snapshot()
	assert.Equal(t, 0.0, state.SpentTodayUSD)
	assert.Equal(t, 0, state.Outstanding)
}

func TestBudgetTracker_DailyRollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 23, 59, 0, 0, time.Local)}
	b := newTracker(1.00, 10.00, tracker.WithClock(clock.Now))

	_, err := b.Reserve(0.90)
	require.NoError(t, err)
	_, err = b.Reserve(0.20)
	require.ErrorIs(t, err, tracker.ErrBudgetExceeded)

	clock.Set(time.Date(2025, 3, 11, 0, 0, 1, 0, time.Local))
	_, err = b.Reserve(0.20)
	require.NoError(t, err)

	state := b.Snapshot()
	assert.InDelta(t, 0.20, state.SpentTodayUSD, 1e-12)
	assert.InDelta(t, 1.10, state.SpentMonthUSD, 1e-12)
	assert.Equal(t, 11, state.DayStart.Day())
}

func TestBudgetTracker_MonthlyRollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 31, 12, 0, 0, 0, time.Local)}
	b := newTracker(0, 5.00, tracker.WithClock(clock.Now))
	b.Restore(3, 4.5)

	clock.Set(time.Date(2025, 2, 1, 8, 0, 0, 0, time.Local))
	state := b.Snapshot()
	assert.Equal(t, 0.0, state.SpentTodayUSD)
	assert.Equal(t, 0.0, state.SpentMonthUSD)
	assert.Equal(t, time.February, state.MonthStart.Month())
}

func TestBudgetTracker_SettleAcrossRollover(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 10, 23, 59, 59, 0, time.Local)}
	b := newTracker(10, 100, tracker.WithClock(clock.Now))

	late, err := b.Reserve(1.00)
	require.NoError(t, err)
	refunded, err := b.Reserve(2.00)
	require.NoError(t, err)

	clock.Set(time.Date(2025, 3, 11, 0, 0, 1, 0, time.Local))
	require.NoError(t, b.Commit(late.ID, 0.60))
	require.NoError(t, b.Release(refunded.ID))

	state := b.Snapshot()
	assert.InDelta(t, 0.60, state.SpentTodayUSD, 1e-12, "actual cost lands in the new day")
	assert.InDelta(t, 0.60, state.SpentMonthUSD, 1e-12)
}

func TestBudgetTracker_ManualReset(t *testing.T) {
	b := newTracker(10, 100)
	b.Restore(4, 40)

	b.ResetDaily()
	assert.Equal(t, 0.0, b.Snapshot().SpentTodayUSD)
	assert.Equal(t, 40.0, b.Snapshot().SpentMonthUSD)

	b.ResetMonthly()
	assert.Equal(t, 0.0, b.Snapshot().SpentMonthUSD)
}

func TestBudgetTracker_RunRolloverStops(t *testing.T) {
	b := newTracker(10, 100)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		b.RunRollover(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunRollover did not return after cancel")
	}
}

func TestBudgetTracker_ThresholdAlerts(t *testing.T) {
	n := &recordingNotifier{}
	b := newTracker(1.00, 0, tracker.WithNotifiers([]alerts.Notifier{n}, 50))

	// 40%, 55%, 60%, 96%, 100%
	for _, amount := range []float64{0.40, 0.15, 0.05, 0.36, 0.04} {
		_, err := b.Reserve(amount)
		require.NoError(t, err)
		b.Wait()
	}

	assert.Equal(t, []alerts.AlertLevel{alerts.AlertWarning, alerts.AlertCritical, alerts.AlertExceeded}, n.Levels())
}

func TestBudgetTracker_AlertsRearmAfterReset(t *testing.T) {
	n := &recordingNotifier{}
	b := newTracker(1.00, 0, tracker.WithNotifiers([]alerts.Notifier{n}, 80))

	_, err := b.Reserve(0.85)
	require.NoError(t, err)
	b.Wait()
	b.ResetDaily()
	_, err = b.Reserve(0.85)
	require.NoError(t, err)
	b.Wait()

	assert.Equal(t, []alerts.AlertLevel{alerts.AlertWarning, alerts.AlertWarning}, n.Levels())
}

func BenchmarkBudgetTracker_ReserveCommit(b *testing.B) {
	bt := newTracker(0, 0)
	for b.Loop() {
		res, _ := bt.Reserve(0.001)
		_ = bt.Commit(res.ID, 0.0009)
	}
}
