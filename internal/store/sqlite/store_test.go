package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "snipes.db")
	s := NewStore(path)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func params(release time.Time, times ...string) snipe.Params {
	if len(times) == 0 {
		times = []string{"7:00 PM", "7:30 PM"}
	}
	return snipe.Params{
		Restaurant:     snipe.RestaurantRef{Platform: reservation.PlatformResy, ID: "1505", Name: "Don Angie"},
		TargetDate:     "2026-02-15",
		PartySize:      2,
		PreferredTimes: times,
		ReleaseTime:    release,
	}
}

func TestCreateAndGet(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	release := time.Now().Add(time.Hour)

	created, err := s.Create(ctx, params(release, "7:30 PM", "7:00 PM", "8 pm"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, snipe.StatusPending, created.Status)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)
	assert.Equal(t, []string{"7:30 PM", "7:00 PM", "8 pm"}, got.PreferredTimes, "order is a priority list")
	assert.Equal(t, reservation.PlatformResy, got.Restaurant.Platform)
}

func TestGetMissing(t *testing.T) {
	s, _ := setupTestStore(t)
	_, err := s.Get(context.Background(), snipe.NewID())
	assert.ErrorIs(t, err, snipe.ErrNotFound)
}

func TestListOrderingAndFilter(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	late, err := s.Create(ctx, params(now.Add(3*time.Hour)))
	require.NoError(t, err)
	soon, err := s.Create(ctx, params(now.Add(time.Hour)))
	require.NoError(t, err)
	mid, err := s.Create(ctx, params(now.Add(2*time.Hour)))
	require.NoError(t, err)

	all, err := s.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{soon.ID, mid.ID, late.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

	require.NoError(t, s.UpdateStatus(ctx, mid.ID, snipe.StatusFailed, "missed"))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, soon.ID, pending[0].ID)
	assert.Equal(t, late.ID, pending[1].ID)

	failed := snipe.StatusFailed
	onlyFailed, err := s.List(ctx, &failed)
	require.NoError(t, err)
	require.Len(t, onlyFailed, 1)
	assert.Equal(t, "missed", onlyFailed[0].Result)
}

func TestUpdateStatusMissing(t *testing.T) {
	s, _ := setupTestStore(t)
	err := s.UpdateStatus(context.Background(), snipe.NewID(), snipe.StatusFailed, "")
	assert.ErrorIs(t, err, snipe.ErrNotFound)
}

func TestTransitionIsCompareAndSet(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, params(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	ok, err := s.Transition(ctx, rec.ID, snipe.StatusPending, snipe.StatusRunning, "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Transition(ctx, rec.ID, snipe.StatusPending, snipe.StatusCancelled, "cancelled")
	require.NoError(t, err)
	assert.False(t, ok, "second actor loses the race")

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, snipe.StatusRunning, got.Status)
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, params(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	var mu sync.Mutex
	wins := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.Transition(ctx, rec.ID, snipe.StatusPending, snipe.StatusRunning, "")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestDelete(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, params(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	ok, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, snipe.ErrNotFound)
}

func TestWritesSurviveReopen(t *testing.T) {
	s, path := setupTestStore(t)
	ctx := context.Background()
	rec, err := s.Create(ctx, params(time.Now().Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, s.UpdateStatus(ctx, rec.ID, snipe.StatusSuccess, "Booked 7:15 PM (confirmation RGS-1)"))
	require.NoError(t, s.Close())

	reopened := NewStore(path)
	defer reopened.Close()
	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Equal(t, "Booked 7:15 PM (confirmation RGS-1)", got.Result)
	assert.True(t, rec.ReleaseTime.Equal(got.ReleaseTime))
}

func TestMigrationsAreIdempotent(t *testing.T) {
	_, path := setupTestStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		s := NewStore(path)
		_, err := s.List(ctx, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestDataDirectoryCreatedOnFirstUse(t *testing.T) {
	s, path := setupTestStore(t)
	dir := filepath.Dir(path)

	_, err := os.Stat(dir)
	require.True(t, os.IsNotExist(err), "nothing is created before first use")

	_, err = s.Create(context.Background(), params(time.Now().Add(time.Hour)))
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}
