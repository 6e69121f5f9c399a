// Package notify announces terminal snipe outcomes. Delivery is best-effort:
// callers log a Notify error and move on.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/example/resy-sniper/internal/logger"
	"github.com/example/resy-sniper/internal/snipe"
)

type Kind string

const (
	KindSucceeded Kind = "snipe.succeeded"
	KindFailed    Kind = "snipe.failed"
)

type Event struct {
	Kind           Kind      `json:"kind"`
	SnipeID        string    `json:"snipe_id"`
	Platform       string    `json:"platform"`
	RestaurantID   string    `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name,omitempty"`
	TargetDate     string    `json:"target_date"`
	PartySize      int       `json:"party_size"`
	Result         string    `json:"result"`
	At             time.Time `json:"at"`
}

// NewEvent describes the terminal state of s.
func NewEvent(s snipe.Snipe, at time.Time) Event {
	kind := KindFailed
	if s.Status == snipe.StatusSuccess {
		kind = KindSucceeded
	}
	return Event{
		Kind:           kind,
		SnipeID:        s.ID,
		Platform:       string(s.Restaurant.Platform),
		RestaurantID:   s.Restaurant.ID,
		RestaurantName: s.Restaurant.Name,
		TargetDate:     s.TargetDate,
		PartySize:      s.PartySize,
		Result:         s.Result,
		At:             at.UTC(),
	}
}

func (e Event) encode() ([]byte, error) { return json.Marshal(e) }

type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }

// Log writes events to the application log.
type Log struct {
	Logger logger.Logger
}

func (l Log) Notify(_ context.Context, e Event) error {
	fields := []logger.Field{
		logger.String("snipe_id", e.SnipeID),
		logger.String("platform", e.Platform),
		logger.String("restaurant_id", e.RestaurantID),
		logger.String("target_date", e.TargetDate),
		logger.String("result", e.Result),
	}
	if e.Kind == KindSucceeded {
		l.Logger.Info("snipe succeeded", fields...)
	} else {
		l.Logger.Warn("snipe failed", fields...)
	}
	return nil
}

// Multi fans an event out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, e Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
