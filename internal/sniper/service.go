// Package sniper is the caller-facing lifecycle API shared by the CLI and the
// HTTP server: create, list, get and cancel snipes.
package sniper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/snipe"
)

var ErrNotCancellable = errors.New("snipe cannot be cancelled")

const CancelledResult = "cancelled by user"

// Scheduler is the part of *scheduler.Scheduler the service drives. A nil
// Scheduler is allowed: the CLI writes to the shared store and the server
// picks new snipes up on its next sync.
type Scheduler interface {
	Schedule(s snipe.Snipe) error
	Cancel(id string) bool
}

type Service struct {
	store     snipe.Store
	scheduler Scheduler
	log       logger.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithScheduler(s Scheduler) Option {
	return func(svc *Service) { svc.scheduler = s }
}

func WithLogger(l logger.Logger) Option {
	return func(svc *Service) { svc.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func New(store snipe.Store, opts ...Option) *Service {
	s := &Service{store: store, log: logger.Nop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create validates p, persists it as pending and arms its timer.
func (s *Service) Create(ctx context.Context, p snipe.Params) (snipe.Snipe, error) {
	if err := p.Validate(s.now()); err != nil {
		return snipe.Snipe{}, err
	}
	rec, err := s.store.Create(ctx, p)
	if err != nil {
		return snipe.Snipe{}, fmt.Errorf("create snipe: %w", err)
	}
	s.log.Info("snipe created",
		logger.String("snipe_id", rec.ID),
		logger.String("platform", rec.Restaurant.Platform.String()),
		logger.String("restaurant_id", rec.Restaurant.ID),
		logger.Time("release_time", rec.ReleaseTime),
	)

	if s.scheduler != nil {
		if err := s.scheduler.Schedule(rec); err != nil {
			// The record is durable; the next startup or sync arms it.
			s.log.Warn("snipe created but not armed", logger.String("snipe_id", rec.ID), logger.Error(err))
		}
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id string) (snipe.Snipe, error) {
	if err := snipe.ValidateID(id); err != nil {
		return snipe.Snipe{}, err
	}
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, status *snipe.Status) ([]snipe.Snipe, error) {
	return s.store.List(ctx, status)
}

// Cancel moves a pending snipe to cancelled, disarms it and removes the
// record. Any other status is rejected with ErrNotCancellable and the record
// is left as it was.
func (s *Service) Cancel(ctx context.Context, id string) (snipe.Snipe, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return snipe.Snipe{}, err
	}
	if rec.Status != snipe.StatusPending {
		return snipe.Snipe{}, fmt.Errorf("%w: status is %s", ErrNotCancellable, rec.Status)
	}

	ok, err := s.store.Transition(ctx, id, snipe.StatusPending, snipe.StatusCancelled, CancelledResult)
	if err != nil {
		return snipe.Snipe{}, fmt.Errorf("cancel snipe: %w", err)
	}
	if !ok {
		// The timer fired between the read and the transition.
		cur, err := s.store.Get(ctx, id)
		if err != nil {
			return snipe.Snipe{}, err
		}
		return snipe.Snipe{}, fmt.Errorf("%w: status is %s", ErrNotCancellable, cur.Status)
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(id)
	}
	if _, err := s.store.Delete(ctx, id); err != nil {
		s.log.Warn("cancelled snipe could not be deleted", logger.String("snipe_id", id), logger.Error(err))
	}
	s.log.Info("snipe cancelled", logger.String("snipe_id", id))

	rec.Status, rec.Result = snipe.StatusCancelled, CancelledResult
	return rec, nil
}
