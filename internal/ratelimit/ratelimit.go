// Package ratelimit gates outbound platform calls with one lazily refilled
// token bucket per platform.
package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Budget describes one bucket: MaxTokens capacity, RefillRate tokens added
// per RefillInterval.
type Budget struct {
	MaxTokens      int           `yaml:"max_tokens" json:"max_tokens"`
	RefillRate     int           `yaml:"refill_rate" json:"refill_rate"`
	RefillInterval time.Duration `yaml:"refill_interval" json:"refill_interval"`
}

// PerMinute is the budget shape used by the default platform quotas.
func PerMinute(n int) Budget {
	return Budget{MaxTokens: n, RefillRate: n, RefillInterval: time.Minute}
}

// DefaultBudget applies to platforms with no configured budget.
var DefaultBudget = PerMinute(10)

// DefaultBudgets are the per-platform quotas used when config sets none.
func DefaultBudgets() map[string]Budget {
	return map[string]Budget{
		"resy":      PerMinute(30),
		"opentable": PerMinute(20),
	}
}

func (b Budget) normalized() Budget {
	if b.MaxTokens < 1 {
		b.MaxTokens = 1
	}
	if b.RefillRate < 1 {
		b.RefillRate = 1
	}
	if b.RefillInterval <= 0 {
		b.RefillInterval = time.Minute
	}
	return b
}

type Status struct {
	Platform   string    `json:"platform"`
	Available  int       `json:"available"`
	Max        int       `json:"max"`
	NextRefill time.Time `json:"next_refill"`
	IsLimited  bool      `json:"is_limited"`
}

type bucket struct {
	budget     Budget
	tokens     int
	lastRefill time.Time
	// reset is closed when the bucket is reset so parked Acquire calls give up.
	reset chan struct{}
}

type Limiter struct {
	mu       sync.Mutex
	budgets  map[string]Budget
	fallback Budget
	buckets  map[string]*bucket
	now      func() time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now; tests use it to step time by hand.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithFallback sets the budget for platforms missing from the budget map.
func WithFallback(b Budget) Option {
	return func(l *Limiter) { l.fallback = b.normalized() }
}

func New(budgets map[string]Budget, opts ...Option) *Limiter {
	l := &Limiter{
		budgets:  make(map[string]Budget, len(budgets)),
		fallback: DefaultBudget,
		buckets:  make(map[string]*bucket),
		now:      time.Now,
	}
	for name, b := range budgets {
		l.budgets[name] = b.normalized()
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// bucketLocked returns the bucket for platform, creating a full one on first
// use, and applies any refill owed since the last access.
func (l *Limiter) bucketLocked(platform string, now time.Time) *bucket {
	b, ok := l.buckets[platform]
	if !ok {
		budget, ok := l.budgets[platform]
		if !ok {
			budget = l.fallback
		}
		b = &bucket{budget: budget, tokens: budget.MaxTokens, lastRefill: now, reset: make(chan struct{})}
		l.buckets[platform] = b
		return b
	}

	elapsed := now.Sub(b.lastRefill)
	if elapsed < b.budget.RefillInterval {
		return b
	}
	intervals := int(elapsed / b.budget.RefillInterval)
	b.tokens += intervals * b.budget.RefillRate
	if b.tokens > b.budget.MaxTokens {
		b.tokens = b.budget.MaxTokens
	}
	b.lastRefill = b.lastRefill.Add(time.Duration(intervals) * b.budget.RefillInterval)
	return b
}

// TryAcquire takes a token for platform if one is available. It never blocks.
func (l *Limiter) TryAcquire(platform string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tryAcquireLocked(platform, l.now())
}

func (l *Limiter) tryAcquireLocked(platform string, now time.Time) bool {
	b := l.bucketLocked(platform, now)
	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// Acquire tries once immediately. If the bucket is empty and the next refill
// lands within timeout, it parks only the calling goroutine until then and
// tries exactly once more. It returns false without waiting when the refill
// is further away than timeout, and early when ctx ends or the bucket is reset.
func (l *Limiter) Acquire(ctx context.Context, platform string, timeout time.Duration) bool {
	l.mu.Lock()
	now := l.now()
	if l.tryAcquireLocked(platform, now) {
		l.mu.Unlock()
		return true
	}
	b := l.buckets[platform]
	wait := b.lastRefill.Add(b.budget.RefillInterval).Sub(now)
	reset := b.reset
	l.mu.Unlock()

	if wait > timeout {
		return false
	}
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-t.C:
		case <-reset:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return l.TryAcquire(platform)
}

func (l *Limiter) Status(platform string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statusLocked(platform, l.now())
}

func (l *Limiter) statusLocked(platform string, now time.Time) Status {
	b := l.bucketLocked(platform, now)
	return Status{
		Platform:   platform,
		Available:  b.tokens,
		Max:        b.budget.MaxTokens,
		NextRefill: b.lastRefill.Add(b.budget.RefillInterval),
		IsLimited:  b.tokens <= 0,
	}
}

// AllStatus reports every configured platform plus any other platform that
// has been seen, sorted by name.
func (l *Limiter) AllStatus() []Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	names := make(map[string]struct{}, len(l.budgets)+len(l.buckets))
	for name := range l.budgets {
		names[name] = struct{}{}
	}
	for name := range l.buckets {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	now := l.now()
	out := make([]Status, 0, len(sorted))
	for _, name := range sorted {
		out = append(out, l.statusLocked(name, now))
	}
	return out
}

// Reset drops the bucket for platform; the next access starts full. Any
// Acquire parked on the old bucket returns false.
func (l *Limiter) Reset(platform string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked(platform)
}

func (l *Limiter) ResetAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for name := range l.buckets {
		l.resetLocked(name)
	}
}

func (l *Limiter) resetLocked(platform string) {
	if b, ok := l.buckets[platform]; ok {
		close(b.reset)
		delete(l.buckets, platform)
	}
}
