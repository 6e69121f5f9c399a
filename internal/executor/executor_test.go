package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/resy-sniper/internal/notify"
	"github.com/example/resy-sniper/internal/platform"
	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
	"github.com/example/resy-sniper/internal/store/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

type fakeProvider struct {
	name reservation.Platform

	mu        sync.Mutex
	polls     int
	responses [][]reservation.Slot
	errs      []error
	onPoll    func(n int)

	booked  []reservation.Slot
	booking reservation.Booking
	bookErr error
}

func (p *fakeProvider) Name() reservation.Platform { return p.name }
func (p *fakeProvider) Ping(context.Context) error { return nil }

func (p *fakeProvider) Availability(_ context.Context, _ reservation.Request) ([]reservation.Slot, error) {
	p.mu.Lock()
	n := p.polls
	p.polls++
	hook := p.onPoll
	p.mu.Unlock()
	if hook != nil {
		hook(n + 1)
	}
	if n < len(p.errs) && p.errs[n] != nil {
		return nil, p.errs[n]
	}
	if n < len(p.responses) {
		return p.responses[n], nil
	}
	return nil, nil
}

func (p *fakeProvider) Book(_ context.Context, s reservation.Slot, _ reservation.Request) (reservation.Booking, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.booked = append(p.booked, s)
	return p.booking, p.bookErr
}

func (p *fakeProvider) pollCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

type fakeLimiter struct {
	deny  int
	calls int
}

func (l *fakeLimiter) Acquire(context.Context, string, time.Duration) bool {
	l.calls++
	if l.deny > 0 {
		l.deny--
		return false
	}
	return true
}

type recordingNotifier struct {
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, e notify.Event) error {
	n.events = append(n.events, e)
	return n.err
}

type harness struct {
	store    *memory.Store
	provider *fakeProvider
	limiter  *fakeLimiter
	notifier *recordingNotifier
	clock    *fakeClock
	exec     *Executor
}

func newHarness(t *testing.T, p reservation.Platform) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewStore(),
		provider: &fakeProvider{name: p, booking: reservation.Booking{ConfirmationID: "RGS-1"}},
		limiter:  &fakeLimiter{},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{t: time.Date(2026, 2, 1, 8, 59, 30, 0, time.UTC)},
	}
	h.exec = New(h.store, platform.NewRegistry(h.provider), h.limiter, DefaultConfig(),
		WithNotifier(h.notifier),
		WithClock(h.clock.now, h.clock.sleep),
	)
	return h
}

func (h *harness) create(t *testing.T, p reservation.Platform, times ...string) snipe.Snipe {
	t.Helper()
	if len(times) == 0 {
		times = []string{"7:00 PM", "7:30 PM"}
	}
	rec, err := h.store.Create(context.Background(), snipe.Params{
		Restaurant:     snipe.RestaurantRef{Platform: p, ID: "1505", Name: "Don Angie"},
		TargetDate:     "2026-02-15",
		PartySize:      2,
		PreferredTimes: times,
		ReleaseTime:    time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return rec
}

func (h *harness) get(t *testing.T, id string) snipe.Snipe {
	t.Helper()
	got, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return got
}

func slot(at, token string) reservation.Slot {
	return reservation.Slot{Time: "2026-02-15 " + at, Token: token}
}

func TestBooksNearbySlotOnSecondPoll(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.responses = [][]reservation.Slot{
		nil,
		{slot("17:00:00", "early"), slot("19:15:00", "cfg-715")},
	}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Contains(t, got.Result, "RGS-1")
	assert.Contains(t, got.Result, "7:15 PM")
	assert.Contains(t, got.Result, "preferred 7:00 PM")
	assert.Equal(t, 2, h.provider.pollCount())
	require.Len(t, h.provider.booked, 1)
	assert.Equal(t, "cfg-715", h.provider.booked[0].Token)

	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, notify.KindSucceeded, h.notifier.events[0].Kind)
	assert.Equal(t, got.Result, h.notifier.events[0].Result)
}

func TestTimesOutWithoutMatch(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.responses = [][]reservation.Slot{{slot("22:00:00", "late")}}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Contains(t, got.Result, "Timed out after 2m0s")
	// 2 minutes at a 500ms interval.
	assert.Equal(t, 240, h.provider.pollCount())
	assert.Empty(t, h.provider.booked)
	require.Len(t, h.notifier.events, 1)
	assert.Equal(t, notify.KindFailed, h.notifier.events[0].Kind)
}

func TestMatchArrivingAfterDeadlineIsNotBooked(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.responses = [][]reservation.Slot{{slot("19:00:00", "cfg")}}
	h.provider.onPoll = func(int) {
		h.clock.mu.Lock()
		h.clock.t = h.clock.t.Add(3 * time.Minute)
		h.clock.mu.Unlock()
	}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Contains(t, got.Result, "Timed out after 2m0s")
	assert.Equal(t, 1, h.provider.pollCount())
	assert.Empty(t, h.provider.booked)
}

func TestBookingErrorIsTerminal(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.responses = [][]reservation.Slot{{slot("19:00:00", "cfg")}, {slot("19:00:00", "cfg")}}
	h.provider.bookErr = errors.New("slot taken")
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Equal(t, "Booking failed for 7:00 PM slot: slot taken", got.Result)
	assert.Equal(t, 1, h.provider.pollCount(), "no polling after a failed booking")
}

func TestLinkOnlyPlatformSucceedsWithURL(t *testing.T) {
	h := newHarness(t, reservation.PlatformOpenTable)
	h.provider.responses = [][]reservation.Slot{{{Time: "2026-02-15T19:30:00", Token: "token=t"}}}
	h.provider.booking = reservation.Booking{URL: "https://www.opentable.com/booking/details?rid=1505"}
	sn := h.create(t, reservation.PlatformOpenTable, "7:30 PM")

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Contains(t, got.Result, "complete booking at https://www.opentable.com/booking/details?rid=1505")
}

func TestPlatformErrorsAreTransient(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.errs = []error{errors.New("connection reset"), errors.New("502")}
	h.provider.responses = [][]reservation.Slot{nil, nil, {slot("19:30:00", "cfg")}}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Equal(t, 3, h.provider.pollCount())
}

func TestTimeoutReportsLastError(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	errs := make([]error, 300)
	for i := range errs {
		errs[i] = errors.New("503 from upstream")
	}
	h.provider.errs = errs
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Contains(t, got.Result, "last error: 503 from upstream")
}

func TestLimiterTimeoutIsTransient(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.limiter.deny = 3
	h.provider.responses = [][]reservation.Slot{{slot("19:00:00", "cfg")}}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Equal(t, 4, h.limiter.calls)
	assert.Equal(t, 1, h.provider.pollCount())
}

func TestMalformedPreferenceDoesNotAbort(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.provider.responses = [][]reservation.Slot{{{Time: "garbage", Token: "x"}, slot("20:05:00", "cfg")}}
	sn := h.create(t, reservation.PlatformResy, "whenever", "8:00 PM")

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusSuccess, got.Status)
	assert.Contains(t, got.Result, "8:05 PM")
}

func TestSkipsSnipeThatIsNotPending(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	sn := h.create(t, reservation.PlatformResy)
	ok, err := h.store.Transition(context.Background(), sn.ID, snipe.StatusPending, snipe.StatusCancelled, "cancelled")
	require.NoError(t, err)
	require.True(t, ok)

	h.exec.Run(context.Background(), sn)

	assert.Equal(t, snipe.StatusCancelled, h.get(t, sn.ID).Status)
	assert.Zero(t, h.provider.pollCount())
	assert.Empty(t, h.notifier.events)
}

func TestNotifierFailureDoesNotAffectOutcome(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	h.notifier.err = errors.New("redis down")
	h.provider.responses = [][]reservation.Slot{{slot("19:00:00", "cfg")}}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(context.Background(), sn)

	assert.Equal(t, snipe.StatusSuccess, h.get(t, sn.ID).Status)
}

func TestShutdownMarksInterrupted(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.provider.onPoll = func(n int) {
		if n == 2 {
			cancel()
		}
	}
	sn := h.create(t, reservation.PlatformResy)

	h.exec.Run(ctx, sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Equal(t, InterruptedResult, got.Result)
}

func TestUnknownPlatformFails(t *testing.T) {
	h := newHarness(t, reservation.PlatformResy)
	sn := h.create(t, reservation.PlatformOpenTable)

	h.exec.Run(context.Background(), sn)

	got := h.get(t, sn.ID)
	assert.Equal(t, snipe.StatusFailed, got.Status)
	assert.Contains(t, got.Result, "opentable")
}

func TestConfigDefaults(t *testing.T) {
	c := Config{Tolerance: 0}.withDefaults()
	assert.Equal(t, DefaultMaxPoll, c.MaxPoll)
	assert.Equal(t, DefaultPollInterval, c.PollInterval)
	assert.Equal(t, DefaultAcquireTimeout, c.AcquireTimeout)
	assert.Equal(t, time.Duration(0), c.Tolerance, "zero tolerance means exact matches only")
}
