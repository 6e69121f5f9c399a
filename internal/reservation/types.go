package reservation

import (
	"context"
	"time"
)

type Platform string

const (
	PlatformResy      Platform = "resy"
	PlatformOpenTable Platform = "opentable"
)

// Platforms is the closed set of platforms a snipe can target.
var Platforms = []Platform{PlatformResy, PlatformOpenTable}

func (p Platform) Valid() bool {
	for _, known := range Platforms {
		if p == known {
			return true
		}
	}
	return false
}

func (p Platform) String() string { return string(p) }

type Request struct {
	VenueID   string
	Date      time.Time
	PartySize int
}

// Slot is one bookable time returned by a platform. Time is kept as the
// platform's own text; Token is opaque and only meaningful to the platform
// that produced it.
type Slot struct {
	Time  string
	Token string
	Type  string
}

// Booking is the outcome of a successful Book call. Direct-booking platforms
// fill ConfirmationID; link-only platforms fill URL.
type Booking struct {
	ConfirmationID string
	URL            string
}

func (b Booking) IsLink() bool { return b.ConfirmationID == "" && b.URL != "" }

type BookingProvider interface {
	Name() Platform
	Ping(ctx context.Context) error
	Availability(ctx context.Context, req Request) ([]Slot, error)
	Book(ctx context.Context, slot Slot, req Request) (Booking, error)
}
