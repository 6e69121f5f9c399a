// Package scheduler arms one timer per pending snipe and hands the snipe to a
// Runner when its timer fires.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/snipe"
)

// DefaultLeadTime is how early polling starts ahead of the nominal release.
const DefaultLeadTime = 30 * time.Second

// MissedResult is recorded for pending snipes whose release passed while the
// process was down.
const MissedResult = "missed release time"

var ErrStopped = errors.New("scheduler stopped")

// Runner executes a fired snipe. It owns every status change after pending.
type Runner interface {
	Run(ctx context.Context, s snipe.Snipe)
}

type RunnerFunc func(ctx context.Context, s snipe.Snipe)

func (f RunnerFunc) Run(ctx context.Context, s snipe.Snipe) { f(ctx, s) }

type entry struct {
	timer *time.Timer
	gen   uint64
}

type Scheduler struct {
	store    snipe.Store
	runner   Runner
	log      logger.Logger
	leadTime time.Duration
	now      func() time.Time

	runCtx     context.Context
	cancelRuns context.CancelFunc
	wg         sync.WaitGroup

	mu       sync.Mutex
	gen      uint64
	armed    map[string]entry
	inFlight map[string]struct{}
	stopped  bool
}

type Option func(*Scheduler)

func WithLeadTime(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.leadTime = d
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(store snipe.Store, runner Runner, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		store:      store,
		runner:     runner,
		log:        logger.Nop(),
		leadTime:   DefaultLeadTime,
		now:        time.Now,
		runCtx:     ctx,
		cancelRuns: cancel,
		armed:      make(map[string]entry),
		inFlight:   make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FireDelay is how long to wait before handing a snipe released at release to
// the runner.
func FireDelay(release time.Time, leadTime time.Duration, now time.Time) time.Duration {
	d := release.Add(-leadTime).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Startup fails pending snipes whose release already passed and arms the rest.
// Calling it again is harmless: resolved snipes are no longer pending and
// armed ones are simply re-armed.
func (s *Scheduler) Startup(ctx context.Context) error {
	pending, err := s.store.Pending(ctx)
	if err != nil {
		return err
	}

	armed, missed := 0, 0
	for _, sn := range pending {
		ok, err := s.recover(ctx, sn)
		if err != nil {
			return err
		}
		if ok {
			armed++
		} else {
			missed++
		}
	}
	s.log.Info("scheduler started",
		logger.Int("armed", armed),
		logger.Int("missed", missed),
		logger.Duration("lead_time", s.leadTime),
	)
	return nil
}

// recover arms sn, or fails it when its release time has passed. It reports
// whether a timer was armed.
func (s *Scheduler) recover(ctx context.Context, sn snipe.Snipe) (bool, error) {
	if !sn.ReleaseTime.After(s.now()) {
		if _, err := s.store.Transition(ctx, sn.ID, snipe.StatusPending, snipe.StatusFailed, MissedResult); err != nil {
			return false, err
		}
		s.log.Warn("snipe missed its release time",
			logger.String("snipe_id", sn.ID),
			logger.Time("release_time", sn.ReleaseTime),
		)
		return false, nil
	}
	return true, s.Schedule(sn)
}

// Schedule arms a timer for sn, replacing any timer already armed for its id.
func (s *Scheduler) Schedule(sn snipe.Snipe) error {
	delay := FireDelay(sn.ReleaseTime, s.leadTime, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	s.disarmLocked(sn.ID)

	s.gen++
	gen, id := s.gen, sn.ID
	s.armed[id] = entry{
		gen:   gen,
		timer: time.AfterFunc(delay, func() { s.fire(id, gen) }),
	}
	s.log.Debug("snipe armed", logger.String("snipe_id", id), logger.Duration("fire_in", delay))
	return nil
}

// Cancel disarms the timer for id and reports whether one was armed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disarmLocked(id)
}

func (s *Scheduler) disarmLocked(id string) bool {
	e, ok := s.armed[id]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.armed, id)
	return true
}

func (s *Scheduler) IsScheduled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[id]
	return ok
}

func (s *Scheduler) ScheduledIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.armed))
	for id := range s.armed {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.armed[id]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.armed, id)
	s.inFlight[id] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, id)
		s.mu.Unlock()
		s.wg.Done()
	}()

	sn, err := s.store.Get(s.runCtx, id)
	if err != nil {
		s.log.Warn("fired snipe could not be loaded", logger.String("snipe_id", id), logger.Error(err))
		return
	}
	if sn.Status != snipe.StatusPending {
		s.log.Info("fired snipe is no longer pending",
			logger.String("snipe_id", id),
			logger.String("status", string(sn.Status)),
		)
		return
	}
	s.runner.Run(s.runCtx, sn)
}

// Sync reconciles the armed set with the store: new pending snipes are
// armed, missed ones failed, and timers for snipes that left pending are
// disarmed. Another process sharing the store (the CLI) is picked up this way.
func (s *Scheduler) Sync(ctx context.Context) error {
	// Entries armed after this point are newer than the snapshot below and
	// must survive the disarm pass.
	s.mu.Lock()
	seen := s.gen
	s.mu.Unlock()

	pending, err := s.store.Pending(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]struct{}, len(pending))
	for _, sn := range pending {
		want[sn.ID] = struct{}{}

		s.mu.Lock()
		_, armed := s.armed[sn.ID]
		_, running := s.inFlight[sn.ID]
		s.mu.Unlock()
		if armed || running {
			continue
		}
		if _, err := s.recover(ctx, sn); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.armed {
		if e.gen > seen {
			continue
		}
		if _, ok := want[id]; !ok {
			s.disarmLocked(id)
			s.log.Debug("snipe disarmed by sync", logger.String("snipe_id", id))
		}
	}
	return nil
}

// Run syncs with the store every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := s.Sync(ctx); err != nil && !errors.Is(err, ErrStopped) {
				s.log.Error("scheduler sync failed", logger.Error(err))
			}
		}
	}
}

// Shutdown disarms every timer without touching the store, so pending
// snipes stay pending for the next Startup. Runs already handed off are
// given until ctx is done to finish and are then cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for id := range s.armed {
		s.disarmLocked(id)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancelRuns()
		return nil
	case <-ctx.Done():
		s.cancelRuns()
		<-done
		return ctx.Err()
	}
}
