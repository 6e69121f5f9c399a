package snipe

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("snipe not found")

// Store persists snipes. Every mutating call is durable once it returns.
// Stores do not police the state machine in UpdateStatus; Transition is the
// compare-and-set used where two actors may race for the same record.
type Store interface {
	Create(ctx context.Context, p Params) (Snipe, error)
	Get(ctx context.Context, id string) (Snipe, error)
	// List returns snipes ordered by release time, soonest first. A nil
	// filter returns every status.
	List(ctx context.Context, status *Status) ([]Snipe, error)
	UpdateStatus(ctx context.Context, id string, status Status, result string) error
	Transition(ctx context.Context, id string, from, to Status, result string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	Pending(ctx context.Context) ([]Snipe, error)
	Close() error
}

// New builds the record a store inserts for p.
func New(p Params, now time.Time) Snipe {
	times := make([]string, len(p.PreferredTimes))
	copy(times, p.PreferredTimes)
	return Snipe{
		ID:             NewID(),
		Restaurant:     p.Restaurant,
		TargetDate:     p.TargetDate,
		PartySize:      p.PartySize,
		PreferredTimes: times,
		ReleaseTime:    p.ReleaseTime.UTC().Truncate(time.Millisecond),
		Status:         StatusPending,
		CreatedAt:      now.UTC().Truncate(time.Millisecond),
	}
}
