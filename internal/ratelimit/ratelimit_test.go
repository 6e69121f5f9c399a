package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 15, 9, 0, 0, 0, time.UTC)}
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

func TestTryAcquire_DrainAndRefill(t *testing.T) {
	clock := newFakeClock()
	budget := Budget{MaxTokens: 5, RefillRate: 2, RefillInterval: time.Minute}
	l := New(map[string]Budget{"resy": budget}, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		require.True(t, l.TryAcquire("resy"), "token %d", i)
	}
	assert.False(t, l.TryAcquire("resy"))

	clock.Advance(59 * time.Second)
	assert.False(t, l.TryAcquire("resy"), "no refill before a full interval")

	clock.Advance(time.Second)
	assert.True(t, l.TryAcquire("resy"))
	assert.True(t, l.TryAcquire("resy"))
	assert.False(t, l.TryAcquire("resy"), "one interval adds exactly RefillRate tokens")
}

func TestTryAcquire_RefillCapsAtMax(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Budget{"resy": {MaxTokens: 3, RefillRate: 2, RefillInterval: time.Second}}, WithClock(clock.Now))

	require.True(t, l.TryAcquire("resy"))
	clock.Advance(time.Hour)

	st := l.Status("resy")
	assert.Equal(t, 3, st.Available)
	assert.Equal(t, 3, st.Max)
	assert.False(t, st.IsLimited)
}

func TestTryAcquire_KeepsPartialInterval(t *testing.T) {
	clock := newFakeClock()
	l := New(map[string]Budget{"resy": {MaxTokens: 1, RefillRate: 1, RefillInterval: 10 * time.Second}}, WithClock(clock.Now))

	require.True(t, l.TryAcquire("resy"))
	clock.Advance(15 * time.Second)
	require.True(t, l.TryAcquire("resy"))

	// The refill clock advanced by one interval, not to "now", so the next
	// token arrives 5s later rather than 10s.
	clock.Advance(5 * time.Second)
	assert.True(t, l.TryAcquire("resy"))
}

func TestUnknownPlatformUsesFallback(t *testing.T) {
	clock := newFakeClock()
	l := New(nil, WithClock(clock.Now), WithFallback(Budget{MaxTokens: 2, RefillRate: 1, RefillInterval: time.Minute}))

	assert.True(t, l.TryAcquire("tock"))
	assert.True(t, l.TryAcquire("tock"))
	assert.False(t, l.TryAcquire("tock"))

	st := l.Status("tock")
	assert.True(t, st.IsLimited)
	assert.Equal(t, clock.Now().Add(time.Minute), st.NextRefill)
}

func TestBucketsArePerPlatform(t *testing.T) {
	l := New(map[string]Budget{
		"resy":      {MaxTokens: 1, RefillRate: 1, RefillInterval: time.Minute},
		"opentable": {MaxTokens: 1, RefillRate: 1, RefillInterval: time.Minute},
	})
	assert.True(t, l.TryAcquire("resy"))
	assert.False(t, l.TryAcquire("resy"))
	assert.True(t, l.TryAcquire("opentable"))
}

func TestAcquire_WaitsForRefillWithinTimeout(t *testing.T) {
	l := New(map[string]Budget{"resy": {MaxTokens: 1, RefillRate: 1, RefillInterval: 50 * time.Millisecond}})
	require.True(t, l.TryAcquire("resy"))

	start := time.Now()
	ok := l.Acquire(context.Background(), "resy", time.Second)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestAcquire_GivesUpWhenRefillIsTooFar(t *testing.T) {
	l := New(map[string]Budget{"resy": {MaxTokens: 1, RefillRate: 1, RefillInterval: time.Hour}})
	require.True(t, l.TryAcquire("resy"))

	start := time.Now()
	assert.False(t, l.Acquire(context.Background(), "resy", 100*time.Millisecond))
	assert.Less(t, time.Since(start), 50*time.Millisecond, "must not wait when the refill cannot fit")
}

func TestAcquire_ResetReleasesWaiters(t *testing.T) {
	l := New(map[string]Budget{"resy": {MaxTokens: 1, RefillRate: 1, RefillInterval: 2 * time.Second}})
	require.True(t, l.TryAcquire("resy"))

	var got atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !l.Acquire(context.Background(), "resy", 5*time.Second) {
				got.Add(1)
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	start := time.Now()
	l.Reset("resy")
	wg.Wait()

	assert.Equal(t, int32(3), got.Load())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, l.TryAcquire("resy"), "bucket starts full after reset")
}

func TestAcquire_ContextCancel(t *testing.T) {
	l := New(map[string]Budget{"resy": {MaxTokens: 1, RefillRate: 1, RefillInterval: 2 * time.Second}})
	require.True(t, l.TryAcquire("resy"))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.False(t, l.Acquire(ctx, "resy", 5*time.Second))
}

func TestConcurrentAcquireNeverOverspends(t *testing.T) {
	l := New(map[string]Budget{"resy": {MaxTokens: 25, RefillRate: 25, RefillInterval: time.Hour}})

	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.TryAcquire("resy") {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(25), granted.Load())
}

func TestAllStatusAndResetAll(t *testing.T) {
	clock := newFakeClock()
	l := New(DefaultBudgets(), WithClock(clock.Now))
	l.TryAcquire("resy")
	l.TryAcquire("tock")

	all := l.AllStatus()
	require.Len(t, all, 3)
	assert.Equal(t, "opentable", all[0].Platform)
	assert.Equal(t, "resy", all[1].Platform)
	assert.Equal(t, 29, all[1].Available)
	assert.Equal(t, "tock", all[2].Platform)
	assert.Equal(t, DefaultBudget.MaxTokens-1, all[2].Available)

	l.ResetAll()
	assert.Equal(t, 30, l.Status("resy").Available)
}
