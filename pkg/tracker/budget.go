package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/alerts"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/model"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
)

var (
	// ErrBudgetExceeded is returned by Reserve when the estimate would push
	// daily or monthly spend over its limit.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrUnknownReservation is returned when settling a reservation that was
	// never issued or has already been settled.
	ErrUnknownReservation = errors.New("unknown reservation")
)

// Amounts are tracked in nano-dollars so that settling a reservation is exact.
const nanosPerUSD = 1e9

func toNanos(usd float64) int64 {
	if usd <= 0 {
		return 0
	}
	return int64(math.Round(usd * nanosPerUSD))
}

func toUSD(nanos int64) float64 {
	return float64(nanos) / nanosPerUSD
}

// DefaultAlertThresholdPct is the warning level used when none is configured.
const DefaultAlertThresholdPct = 80.0

// Reservation is a provisional hold on the budget taken before a provider call.
type Reservation struct {
	ID        string    `json:"id"`
	AmountUSD float64   `json:"amount_usd"`
	CreatedAt time.Time `json:"created_at"`
}

// BudgetState is a point-in-time view of the tracker.
type BudgetState struct {
	SpentTodayUSD   float64   `json:"spent_today_usd"`
	SpentMonthUSD   float64   `json:"spent_month_usd"`
	DailyLimitUSD   float64   `json:"daily_limit_usd"`
	MonthlyLimitUSD float64   `json:"monthly_limit_usd"`
	Outstanding     int       `json:"outstanding_reservations"`
	DayStart        time.Time `json:"day_start"`
	MonthStart      time.Time `json:"month_start"`
}

type hold struct {
	amount     int64
	dayEpoch   uint64
	monthEpoch uint64
}

// BudgetTracker holds the process-wide spend counters and enforces the
// daily and monthly caps. All counter changes happen under one mutex.
type BudgetTracker struct {
	mu           sync.Mutex
	dailyLimit   int64 // 0 means no cap
	monthlyLimit int64
	today        int64
	month        int64
	dayEpoch     uint64
	monthEpoch   uint64
	dayStart     time.Time
	monthStart   time.Time
	holds        map[string]hold
	alerted      map[model.BudgetPeriod]alerts.AlertLevel

	notifiers    []alerts.Notifier
	thresholdPct float64
	logger       *slog.Logger
	now          func() time.Time
	wg           sync.WaitGroup
}

// Option configures a BudgetTracker.
type Option func(*BudgetTracker)

// WithClock overrides the time source used for period rollover.
func WithClock(now func() time.Time) Option {
	return func(b *BudgetTracker) { b.now = now }
}

// WithNotifiers enables threshold alerts. thresholdPct is the warning level;
// critical and exceeded fire at 95% and 100%.
func WithNotifiers(notifiers []alerts.Notifier, thresholdPct float64) Option {
	return func(b *BudgetTracker) {
		b.notifiers = notifiers
		if thresholdPct > 0 {
			b.thresholdPct = thresholdPct
		}
	}
}

// NewBudgetTracker creates a tracker with zero spend. Limits of zero disable
// the corresponding cap.
func NewBudgetTracker(limits providers.BudgetLimits, logger *slog.Logger, opts ...Option) *BudgetTracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	b := &BudgetTracker{
		dailyLimit:   toNanos(limits.DailyLimit),
		monthlyLimit: toNanos(limits.MonthlyLimit),
		holds:        make(map[string]hold),
		alerted:      make(map[model.BudgetPeriod]alerts.AlertLevel),
		thresholdPct: DefaultAlertThresholdPct,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	now := b.now()
	b.dayStart, _ = model.PeriodBounds(model.PeriodDaily, now)
	b.monthStart, _ = model.PeriodBounds(model.PeriodMonthly, now)
	return b
}

// Reserve provisionally adds estimatedUSD to both counters if neither limit
// would be exceeded. On failure it returns ErrBudgetExceeded and leaves the
// counters untouched.
func (b *BudgetTracker) Reserve(estimatedUSD float64) (Reservation, error) {
	amount := toNanos(estimatedUSD)

	b.mu.Lock()
	now := b.now()
	b.rollover(now)

	if b.dailyLimit > 0 && b.today+amount > b.dailyLimit {
		spent := b.today
		b.mu.Unlock()
		return Reservation{}, fmt.Errorf("%w: daily spend $%.4f + estimate $%.4f over limit $%.2f",
			ErrBudgetExceeded, toUSD(spent), toUSD(amount), toUSD(b.dailyLimit))
	}
	if b.monthlyLimit > 0 && b.month+amount > b.monthlyLimit {
		spent := b.month
		b.mu.Unlock()
		return Reservation{}, fmt.Errorf("%w: monthly spend $%.4f + estimate $%.4f over limit $%.2f",
			ErrBudgetExceeded, toUSD(spent), toUSD(amount), toUSD(b.monthlyLimit))
	}

	b.today += amount
	b.month += amount
	id := uuid.New().String()
	b.holds[id] = hold{amount: amount, dayEpoch: b.dayEpoch, monthEpoch: b.monthEpoch}
	pending := b.checkThresholds()
	b.mu.Unlock()

	b.dispatch(pending)
	return Reservation{ID: id, AmountUSD: toUSD(amount), CreatedAt: now}, nil
}

// Commit settles a reservation at the measured cost. The counters move by
// the difference between actual and estimate, which may be negative.
func (b *BudgetTracker) Commit(reservationID string, actualUSD float64) error {
	actual := toNanos(actualUSD)

	b.mu.Lock()
	b.rollover(b.now())

	h, ok := b.holds[reservationID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("commit %s: %w", reservationID, ErrUnknownReservation)
	}
	delete(b.holds, reservationID)

	// A reset since Reserve already dropped the estimate from that counter,
	// so the full actual cost lands in the new period.
	if h.dayEpoch == b.dayEpoch {
		b.today += actual - h.amount
	} else {
		b.today += actual
	}
	if h.monthEpoch == b.monthEpoch {
		b.month += actual - h.amount
	} else {
		b.month += actual
	}
	pending := b.checkThresholds()
	b.mu.Unlock()

	b.dispatch(pending)
	return nil
}

// Release refunds a reservation. Reserve followed by Release leaves the
// counters exactly where they were.
func (b *BudgetTracker) Release(reservationID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	h, ok := b.holds[reservationID]
	if !ok {
		return fmt.Errorf("release %s: %w", reservationID, ErrUnknownReservation)
	}
	delete(b.holds, reservationID)

	if h.dayEpoch == b.dayEpoch {
		b.today -= h.amount
	}
	if h.monthEpoch == b.monthEpoch {
		b.month -= h.amount
	}
	return nil
}

// Snapshot returns the current counters and limits.
func (b *BudgetTracker) Snapshot() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollover(b.now())
	return BudgetState{
		SpentTodayUSD:   toUSD(b.today),
		SpentMonthUSD:   toUSD(b.month),
		DailyLimitUSD:   toUSD(b.dailyLimit),
		MonthlyLimitUSD: toUSD(b.monthlyLimit),
		Outstanding:     len(b.holds),
		DayStart:        b.dayStart,
		MonthStart:      b.monthStart,
	}
}

// Restore sets the counters from persisted spend, typically at startup.
func (b *BudgetTracker) Restore(todayUSD, monthUSD float64) {
	b.mu.Lock()
	b.today = toNanos(todayUSD)
	b.month = toNanos(monthUSD)
	pending := b.checkThresholds()
	b.mu.Unlock()

	b.dispatch(pending)
}

// ResetDaily zeroes the daily counter.
func (b *BudgetTracker) ResetDaily() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetDaily(b.now())
}

// ResetMonthly zeroes the monthly counter.
func (b *BudgetTracker) ResetMonthly() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetMonthly(b.now())
}

func (b *BudgetTracker) resetDaily(now time.Time) {
	b.today = 0
	b.dayEpoch++
	b.dayStart, _ = model.PeriodBounds(model.PeriodDaily, now)
	delete(b.alerted, model.PeriodDaily)
}

func (b *BudgetTracker) resetMonthly(now time.Time) {
	b.month = 0
	b.monthEpoch++
	b.monthStart, _ = model.PeriodBounds(model.PeriodMonthly, now)
	delete(b.alerted, model.PeriodMonthly)
}

// rollover resets counters whose period has ended. Caller holds mu.
func (b *BudgetTracker) rollover(now time.Time) {
	if day, _ := model.PeriodBounds(model.PeriodDaily, now); day.After(b.dayStart) {
		b.logger.Info("daily budget rollover", "spent_usd", toUSD(b.today))
		b.resetDaily(now)
	}
	if month, _ := model.PeriodBounds(model.PeriodMonthly, now); month.After(b.monthStart) {
		b.logger.Info("monthly budget rollover", "spent_usd", toUSD(b.month))
		b.resetMonthly(now)
	}
}

// RunRollover resets the counters at each local midnight and on the first of
// each month until ctx is done.
func (b *BudgetTracker) RunRollover(ctx context.Context) {
	for {
		now := b.now()
		_, next := model.PeriodBounds(model.PeriodDaily, now)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			b.mu.Lock()
			b.rollover(b.now())
			b.mu.Unlock()
		}
	}
}

// Wait blocks until in-flight alert deliveries finish.
func (b *BudgetTracker) Wait() {
	b.wg.Wait()
}

// checkThresholds returns alerts for periods whose level rose since the last
// alert. Caller holds mu.
func (b *BudgetTracker) checkThresholds() []alerts.Alert {
	if len(b.notifiers) == 0 {
		return nil
	}
	var out []alerts.Alert
	if a, ok := b.levelFor(model.PeriodDaily, b.today, b.dailyLimit); ok {
		out = append(out, a)
	}
	if a, ok := b.levelFor(model.PeriodMonthly, b.month, b.monthlyLimit); ok {
		out = append(out, a)
	}
	return out
}

func (b *BudgetTracker) levelFor(period model.BudgetPeriod, spent, limit int64) (alerts.Alert, bool) {
	if limit <= 0 {
		return alerts.Alert{}, false
	}
	pct := float64(spent) / float64(limit) * 100

	var level alerts.AlertLevel
	switch {
	case pct >= 100:
		level = alerts.AlertExceeded
	case pct >= 95:
		level = alerts.AlertCritical
	case pct >= b.thresholdPct:
		level = alerts.AlertWarning
	default:
		return alerts.Alert{}, false
	}
	if level.Rank() <= b.alerted[period].Rank() {
		return alerts.Alert{}, false
	}
	b.alerted[period] = level

	return alerts.Alert{
		Level:        level,
		Period:       string(period),
		SpendUSD:     toUSD(spent),
		LimitUSD:     toUSD(limit),
		UsagePct:     pct,
		ThresholdPct: b.thresholdPct,
		Outstanding:  len(b.holds),
		Message: fmt.Sprintf("%s budget at %.1f%% ($%.2f / $%.2f)",
			period, pct, toUSD(spent), toUSD(limit)),
	}, true
}

// dispatch logs each alert and hands it to every notifier in the background.
func (b *BudgetTracker) dispatch(pending []alerts.Alert) {
	for _, alert := range pending {
		b.logger.Warn("budget threshold crossed",
			"period", alert.Period,
			"level", alert.Level,
			"spend", alert.SpendUSD,
			"limit", alert.LimitUSD,
		)
		for _, n := range b.notifiers {
			b.wg.Add(1)
			go func(n alerts.Notifier, alert alerts.Alert) {
				defer b.wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := n.Send(ctx, alert); err != nil {
					b.logger.Error("send alert failed", "notifier", n.Name(), "period", alert.Period, "error", err)
				}
			}(n, alert)
		}
	}
}
