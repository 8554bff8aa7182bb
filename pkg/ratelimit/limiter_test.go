package ratelimit_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/providers"
	"github.com/ogulcanaydogan/LLM-Provider-Gateway/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_AdmitsLimitWithinWindow(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(map[string]int{"p": 5}, ratelimit.WithClock(clock.Now))
	start := clock.Now()

	// Spread five acquisitions across 59 seconds.
	for i := 0; i < 5; i++ {
		assert.True(t, l.TryAcquire("p"), "acquisition %d", i+1)
		if i < 4 {
			clock.Advance(59 * time.Second / 4)
		}
	}
	require.Equal(t, 59*time.Second, clock.Now().Sub(start))

	assert.False(t, l.TryAcquire("p"), "sixth acquisition inside the window")
	assert.Equal(t, 0, l.Remaining("p"))

	// Once the first timestamp is 60s old it no longer counts.
	clock.Advance(time.Second)
	assert.True(t, l.TryAcquire("p"))
}

func TestLimiter_WindowFullyElapses(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(map[string]int{"p": 3}, ratelimit.WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.True(t, l.TryAcquire("p"))
	}
	assert.False(t, l.TryAcquire("p"))

	clock.Advance(ratelimit.Window)
	assert.Equal(t, 3, l.Remaining("p"))
	for i := 0; i < 3; i++ {
		assert.True(t, l.TryAcquire("p"))
	}
}

func TestLimiter_RejectionDoesNotMutate(t *testing.T) {
	clock := newFakeClock()
	l := ratelimit.New(map[string]int{"p": 1}, ratelimit.WithClock(clock.Now))

	require.True(t, l.TryAcquire("p"))
	clock.Advance(30 * time.Second)
	for i := 0; i < 10; i++ {
		assert.False(t, l.TryAcquire("p"))
	}

	// Only the first acquisition was recorded, so the window reopens 60s after it.
	clock.Advance(30 * time.Second)
	assert.True(t, l.TryAcquire("p"))
}

func TestLimiter_Unlimited(t *testing.T) {
	l := ratelimit.New(map[string]int{"zero": 0})

	for i := 0; i < 1000; i++ {
		require.True(t, l.TryAcquire("zero"))
		require.True(t, l.TryAcquire("unknown"))
	}
	assert.Equal(t, ratelimit.Unlimited, l.Remaining("zero"))
	assert.Equal(t, ratelimit.Unlimited, l.Remaining("unknown"))
}

func TestLimiter_ProvidersAreIndependent(t *testing.T) {
	l := ratelimit.New(map[string]int{"a": 1, "b": 1})

	assert.True(t, l.TryAcquire("a"))
	assert.False(t, l.TryAcquire("a"))
	assert.True(t, l.TryAcquire("b"))
}

func TestLimiter_Reset(t *testing.T) {
	l := ratelimit.New(map[string]int{"p": 1})

	require.True(t, l.TryAcquire("p"))
	require.False(t, l.TryAcquire("p"))

	l.Reset("p")
	assert.True(t, l.TryAcquire("p"))
	l.Reset("unknown")
}

func TestLimiter_Concurrent(t *testing.T) {
	const limit = 50
	l := ratelimit.New(map[string]int{"p": limit})

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("p") {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted.Load())
}

func TestNewFromProviders(t *testing.T) {
	l := ratelimit.NewFromProviders([]providers.Provider{
		{Name: "b", RateLimit: providers.RateLimit{RequestsPerMinute: 1}},
		{Name: "c"},
	})

	assert.True(t, l.TryAcquire("b"))
	assert.False(t, l.TryAcquire("b"))
	assert.True(t, l.TryAcquire("c"))
	assert.True(t, l.TryAcquire("c"))
}

func BenchmarkLimiter_TryAcquire(b *testing.B) {
	l := ratelimit.New(map[string]int{"p": 1000})
	for b.Loop() {
		l.TryAcquire("p")
	}
}
