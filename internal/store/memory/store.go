// Package memory keeps snipes in process memory. Nothing survives a restart,
// so it backs dry runs (SNIPER_STORE=memory) and package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/resy-sniper/internal/snipe"
)

type Store struct {
	mu     sync.Mutex
	snipes map[string]snipe.Snipe
	now    func() time.Time
}

var _ snipe.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{snipes: make(map[string]snipe.Snipe), now: time.Now}
}

func (s *Store) Create(_ context.Context, p snipe.Params) (snipe.Snipe, error) {
	rec := snipe.New(p, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snipes[rec.ID] = clone(rec)
	return rec, nil
}

func (s *Store) Get(_ context.Context, id string) (snipe.Snipe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.snipes[id]
	if !ok {
		return snipe.Snipe{}, snipe.ErrNotFound
	}
	return clone(rec), nil
}

func (s *Store) List(_ context.Context, status *snipe.Status) ([]snipe.Snipe, error) {
	s.mu.Lock()
	var out []snipe.Snipe
	for _, rec := range s.snipes {
		if status != nil && rec.Status != *status {
			continue
		}
		out = append(out, clone(rec))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReleaseTime.Equal(out[j].ReleaseTime) {
			return out[i].ReleaseTime.Before(out[j].ReleaseTime)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Pending(ctx context.Context) ([]snipe.Snipe, error) {
	st := snipe.StatusPending
	return s.List(ctx, &st)
}

func (s *Store) UpdateStatus(_ context.Context, id string, status snipe.Status, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.snipes[id]
	if !ok {
		return snipe.ErrNotFound
	}
	rec.Status = status
	rec.Result = result
	s.snipes[id] = rec
	return nil
}

func (s *Store) Transition(_ context.Context, id string, from, to snipe.Status, result string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.snipes[id]
	if !ok || rec.Status != from {
		return false, nil
	}
	rec.Status = to
	rec.Result = result
	s.snipes[id] = rec
	return true, nil
}

func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.snipes[id]
	delete(s.snipes, id)
	return ok, nil
}

func (s *Store) Close() error { return nil }

func clone(rec snipe.Snipe) snipe.Snipe {
	rec.PreferredTimes = append([]string(nil), rec.PreferredTimes...)
	return rec
}
