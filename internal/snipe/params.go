package snipe

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/resy-sniper/internal/reservation"
)

const (
	DateLayout   = "2006-01-02"
	MaxPartySize = 20
)

// ErrInvalid is wrapped by every ValidationError.
var ErrInvalid = errors.New("invalid snipe parameters")

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Msg }

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Params is what a caller supplies to create a snipe.
type Params struct {
	Restaurant     RestaurantRef
	TargetDate     string
	PartySize      int
	PreferredTimes []string
	ReleaseTime    time.Time
}

// Validate normalises p in place and rejects anything the executor could not
// act on. The release time must be strictly after now.
func (p *Params) Validate(now time.Time) error {
	p.Restaurant.ID = strings.TrimSpace(p.Restaurant.ID)
	p.Restaurant.Name = strings.TrimSpace(p.Restaurant.Name)
	p.TargetDate = strings.TrimSpace(p.TargetDate)

	if !p.Restaurant.Platform.Valid() {
		return invalidf("platform", "unsupported platform %q", p.Restaurant.Platform)
	}
	if p.Restaurant.ID == "" {
		return invalidf("restaurant_id", "required")
	}
	if _, err := time.Parse(DateLayout, p.TargetDate); err != nil {
		return invalidf("target_date", "want YYYY-MM-DD, got %q", p.TargetDate)
	}
	if p.PartySize < 1 || p.PartySize > MaxPartySize {
		return invalidf("party_size", "must be between 1 and %d", MaxPartySize)
	}

	times := make([]string, 0, len(p.PreferredTimes))
	parseable := 0
	for _, t := range p.PreferredTimes {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := reservation.ParseClock(t); ok {
			parseable++
		}
		times = append(times, t)
	}
	if len(times) == 0 {
		return invalidf("preferred_times", "required")
	}
	if parseable == 0 {
		return invalidf("preferred_times", "none of %q is a recognisable time", times)
	}
	p.PreferredTimes = times

	if p.ReleaseTime.IsZero() {
		return invalidf("release_time", "required")
	}
	if !p.ReleaseTime.After(now) {
		return invalidf("release_time", "%s is not in the future", p.ReleaseTime.Format(time.RFC3339))
	}
	return nil
}

// ValidateID rejects ids that could never have been issued by NewID.
func ValidateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalidf("id", "malformed id %q", id)
	}
	return nil
}

func NewID() string { return uuid.NewString() }
