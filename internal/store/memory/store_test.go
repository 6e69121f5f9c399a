package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

func newParams(release time.Time) snipe.Params {
	return snipe.Params{
		Restaurant:     snipe.RestaurantRef{Platform: reservation.PlatformResy, ID: "42"},
		TargetDate:     "2026-02-15",
		PartySize:      2,
		PreferredTimes: []string{"7:00 PM"},
		ReleaseTime:    release,
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	rec, err := s.Create(ctx, newParams(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	rec.PreferredTimes[0] = "mutated"
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"7:00 PM"}, got.PreferredTimes)
}

func TestTransitionAndOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now()
	b, _ := s.Create(ctx, newParams(now.Add(2*time.Hour)))
	a, _ := s.Create(ctx, newParams(now.Add(time.Hour)))

	list, err := s.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)

	ok, err := s.Transition(ctx, a.ID, snipe.StatusPending, snipe.StatusRunning, "")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.Transition(ctx, a.ID, snipe.StatusPending, snipe.StatusCancelled, "")
	assert.False(t, ok)
	ok, _ = s.Transition(ctx, snipe.NewID(), snipe.StatusPending, snipe.StatusCancelled, "")
	assert.False(t, ok)

	pending, _ := s.Pending(ctx)
	require.Len(t, pending, 1)
	assert.Equal(t, b.ID, pending[0].ID)

	assert.ErrorIs(t, s.UpdateStatus(ctx, snipe.NewID(), snipe.StatusFailed, ""), snipe.ErrNotFound)
	deleted, _ := s.Delete(ctx, b.ID)
	assert.True(t, deleted)
	_, err = s.Get(ctx, b.ID)
	assert.ErrorIs(t, err, snipe.ErrNotFound)
}
