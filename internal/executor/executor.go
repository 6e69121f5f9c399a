// Package executor runs the polling and booking race for a fired snipe.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/notify"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

const (
	DefaultMaxPoll        = 2 * time.Minute
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultAcquireTimeout = 5 * time.Second

	// InterruptedResult is recorded when the process stops mid-run.
	InterruptedResult = "interrupted by shutdown"
)

var errRateLimited = errors.New("rate limit token not available")

type Providers interface {
	Provider(p reservation.Platform) (reservation.BookingProvider, error)
}

// Limiter is satisfied by *ratelimit.Limiter.
type Limiter interface {
	Acquire(ctx context.Context, platform string, timeout time.Duration) bool
}

type Config struct {
	MaxPoll        time.Duration
	PollInterval   time.Duration
	Tolerance      time.Duration
	AcquireTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxPoll:        DefaultMaxPoll,
		PollInterval:   DefaultPollInterval,
		Tolerance:      reservation.DefaultTolerance,
		AcquireTimeout: DefaultAcquireTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPoll <= 0 {
		c.MaxPoll = d.MaxPoll
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.Tolerance < 0 {
		c.Tolerance = d.Tolerance
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = d.AcquireTimeout
	}
	return c
}

type Executor struct {
	store     snipe.Store
	providers Providers
	limiter   Limiter
	notifier  notify.Notifier
	log       logger.Logger
	cfg       Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

func WithNotifier(n notify.Notifier) Option {
	return func(e *Executor) { e.notifier = n }
}

func WithLogger(l logger.Logger) Option {
	return func(e *Executor) { e.log = l }
}

// WithClock replaces the wall clock and the poll sleep. Tests step a fake
// clock forward inside sleep.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.now = now
		e.sleep = sleep
	}
}

func New(store snipe.Store, providers Providers, limiter Limiter, cfg Config, opts ...Option) *Executor {
	e := &Executor{
		store:     store,
		providers: providers,
		limiter:   limiter,
		notifier:  notify.Nop{},
		log:       logger.Nop(),
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		sleep:     sleepCtx,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run claims sn by moving it from pending to running and drives it to a
// terminal state. A snipe that is no longer pending is left alone, so a
// cancel that won the race keeps its result.
func (e *Executor) Run(ctx context.Context, sn snipe.Snipe) {
	log := e.log.With(
		logger.String("snipe_id", sn.ID),
		logger.String("platform", sn.Restaurant.Platform.String()),
	)

	ok, err := e.store.Transition(ctx, sn.ID, snipe.StatusPending, snipe.StatusRunning, "")
	if err != nil {
		log.Error("failed to mark snipe running", logger.Error(err))
		return
	}
	if !ok {
		log.Info("snipe was claimed or cancelled before it started")
		return
	}
	log.Info("snipe running", logger.Time("release_time", sn.ReleaseTime))

	status, result := e.attempt(ctx, sn, log)
	e.finish(ctx, sn, status, result, log)
}

func (e *Executor) attempt(ctx context.Context, sn snipe.Snipe, log logger.Logger) (snipe.Status, string) {
	provider, err := e.providers.Provider(sn.Restaurant.Platform)
	if err != nil {
		return snipe.StatusFailed, err.Error()
	}
	req, err := sn.Request()
	if err != nil {
		return snipe.StatusFailed, fmt.Sprintf("invalid target date %q", sn.TargetDate)
	}

	platform := sn.Restaurant.Platform.String()
	deadline := e.now().Add(e.cfg.MaxPoll)
	polls := 0
	var lastErr error

	for {
		if ctx.Err() != nil {
			return snipe.StatusFailed, InterruptedResult
		}
		remaining := deadline.Sub(e.now())
		if remaining <= 0 {
			break
		}

		if !e.limiter.Acquire(ctx, platform, min(e.cfg.AcquireTimeout, remaining)) {
			lastErr = errRateLimited
			log.Debug("rate limited, retrying")
			_ = e.sleep(ctx, e.cfg.PollInterval)
			continue
		}

		polls++
		slots, err := provider.Availability(ctx, req)
		if err != nil {
			lastErr = err
			log.Warn("availability check failed", logger.Int("poll", polls), logger.Error(err))
			_ = e.sleep(ctx, e.cfg.PollInterval)
			continue
		}

		if !e.now().Before(deadline) {
			log.Info("availability returned after the poll deadline", logger.Int("poll", polls))
			break
		}

		m, found := reservation.ChooseSlot(sn.PreferredTimes, slots, e.cfg.Tolerance)
		if !found {
			log.Debug("no matching slot", logger.Int("poll", polls), logger.Int("slots", len(slots)))
			_ = e.sleep(ctx, e.cfg.PollInterval)
			continue
		}

		log.Info("matched slot",
			logger.String("slot", m.Slot.Time),
			logger.String("preferred", m.Preferred),
			logger.Duration("diff", m.Diff),
		)
		booking, err := provider.Book(ctx, m.Slot, req)
		if err != nil {
			// The slot may already be gone; polling on risks a double booking.
			return snipe.StatusFailed, fmt.Sprintf("Booking failed for %s slot: %v", slotLabel(m.Slot), err)
		}
		return snipe.StatusSuccess, describe(m, booking, sn.PartySize, sn.TargetDate)
	}

	msg := fmt.Sprintf("Timed out after %s without a matching slot (%d polls)", e.cfg.MaxPoll, polls)
	if lastErr != nil {
		msg += fmt.Sprintf("; last error: %v", lastErr)
	}
	return snipe.StatusFailed, msg
}

// finish records the outcome even when ctx is already cancelled, then
// notifies best-effort.
func (e *Executor) finish(ctx context.Context, sn snipe.Snipe, status snipe.Status, result string, log logger.Logger) {
	ctx = context.WithoutCancel(ctx)

	ok, err := e.store.Transition(ctx, sn.ID, snipe.StatusRunning, status, result)
	switch {
	case err != nil:
		log.Error("failed to record snipe outcome", logger.Error(err), logger.String("status", string(status)))
		return
	case !ok:
		log.Warn("snipe left running state before its outcome was recorded")
		return
	}
	log.Info("snipe finished", logger.String("status", string(status)), logger.String("result", result))

	sn.Status, sn.Result = status, result
	nctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := e.notifier.Notify(nctx, notify.NewEvent(sn, e.now())); err != nil {
		log.Warn("notification failed", logger.Error(err))
	}
}

func describe(m reservation.Match, b reservation.Booking, partySize int, date string) string {
	if b.IsLink() {
		return fmt.Sprintf("Found %s for %d on %s (preferred %s); complete booking at %s",
			slotLabel(m.Slot), partySize, date, m.Preferred, b.URL)
	}
	return fmt.Sprintf("Booked %s for %d on %s (preferred %s), confirmation %s",
		slotLabel(m.Slot), partySize, date, m.Preferred, b.ConfirmationID)
}

func slotLabel(s reservation.Slot) string {
	if d, ok := reservation.ParseClock(s.Time); ok {
		return reservation.FormatClock(d)
	}
	return s.Time
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
