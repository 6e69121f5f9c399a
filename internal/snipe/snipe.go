// Package snipe holds the snipe record, its lifecycle state machine and the
// storage contract shared by every backend.
package snipe

import (
	"time"

	"github.com/example/resy-sniper/internal/reservation"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusFailed, StatusCancelled},
	StatusRunning: {StatusSuccess, StatusFailed},
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", invalidf("status", "unknown status %q", s)
}

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type RestaurantRef struct {
	Platform reservation.Platform `json:"platform"`
	ID       string               `json:"id"`
	Name     string               `json:"name,omitempty"`
}

type Snipe struct {
	ID             string        `json:"id"`
	Restaurant     RestaurantRef `json:"restaurant"`
	TargetDate     string        `json:"target_date"`
	PartySize      int           `json:"party_size"`
	PreferredTimes []string      `json:"preferred_times"`
	ReleaseTime    time.Time     `json:"release_time"`
	Status         Status        `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	Result         string        `json:"result,omitempty"`
}

// Date parses TargetDate. Stored records always hold a valid date.
func (s Snipe) Date() (time.Time, error) {
	return time.Parse(DateLayout, s.TargetDate)
}

func (s Snipe) Request() (reservation.Request, error) {
	d, err := s.Date()
	if err != nil {
		return reservation.Request{}, err
	}
	return reservation.Request{VenueID: s.Restaurant.ID, Date: d, PartySize: s.PartySize}, nil
}
