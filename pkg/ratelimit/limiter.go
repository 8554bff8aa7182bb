package ratelimit

import (
	"sync"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
)

// Window is the rolling span over which requests are counted.
const Window = 60 * time.Second

// Unlimited is returned by Remaining for providers without a limit.
const Unlimited = -1

// Limiter enforces a per-provider requests-per-minute limit over a sliding
// window. Each provider has its own lock, so providers never contend with
// each other.
type Limiter struct {
	windows map[string]*window // fixed at construction
	now     func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a limiter from provider name to requests per minute.
// Names with a limit of zero or less are unlimited.
func New(limits map[string]int, opts ...Option) *Limiter {
	l := &Limiter{
		windows: make(map[string]*window, len(limits)),
		now:     time.Now,
	}
	for name, rpm := range limits {
		if rpm > 0 {
			l.windows[name] = &window{limit: rpm, stamps: make([]time.Time, 0, rpm)}
		}
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewFromProviders creates a limiter using each provider's configured rate limit.
func NewFromProviders(ps []providers.Provider, opts ...Option) *Limiter {
	limits := make(map[string]int, len(ps))
	for _, p := range ps {
		limits[p.Name] = p.RateLimit.RequestsPerMinute
	}
	return New(limits, opts...)
}

// TryAcquire records a request for the provider if its window has room.
// It returns false without recording anything when the window is full.
// Providers without a configured limit always succeed.
func (l *Limiter) TryAcquire(name string) bool {
	w, ok := l.windows[name]
	if !ok {
		return true
	}
	return w.tryAcquire(l.now())
}

// Remaining returns how many requests the provider may still make in the
// current window, or Unlimited.
func (l *Limiter) Remaining(name string) int {
	w, ok := l.windows[name]
	if !ok {
		return Unlimited
	}
	return w.remaining(l.now())
}

// Reset clears the provider's window.
func (l *Limiter) Reset(name string) {
	if w, ok := l.windows[name]; ok {
		w.reset()
	}
}

// window holds at most limit timestamps, oldest first.
type window struct {
	mu     sync.Mutex
	limit  int
	stamps []time.Time
}

func (w *window) tryAcquire(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	if len(w.stamps) >= w.limit {
		return false
	}
	w.stamps = append(w.stamps, now)
	return true
}

func (w *window) remaining(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(now)
	return w.limit - len(w.stamps)
}

func (w *window) reset() {
	w.mu.Lock()
	w.stamps = w.stamps[:0]
	w.mu.Unlock()
}

// prune drops timestamps that have left the window. Caller holds mu.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(w.stamps, w.stamps[i:])
		w.stamps = w.stamps[:n]
	}
}
