// Package opentable reads availability through OpenTable's persisted GraphQL
// query. OpenTable has no booking API we can drive, so Book returns a link
// the diner follows to finish the reservation.
package opentable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/resy-sniper/internal/reservation"
)

const (
	DefaultBaseURL        = "https://www.opentable.com/dapi"
	DefaultBookingBaseURL = "https://www.opentable.com/booking/details"
	DefaultQueryHash      = "e6b87083b2dfc66e11d26f9bd6e98b8f6a9f4a3b7d0e9a2f33c9f1f6a0b9f2a1"

	defaultUA = "Mozilla/5.0 (X11; Linux x86_64) resy-sniper/1.0"
)

type Config struct {
	Token string
	// QueryHash overrides the persisted query hash when OpenTable rotates it.
	QueryHash      string
	BaseURL        string
	BookingBaseURL string
}

type Provider struct {
	http    *http.Client
	token   string
	hash    string
	base    string
	booking string
}

var _ reservation.BookingProvider = (*Provider)(nil)

func New(cfg Config) *Provider {
	p := &Provider{
		http:    &http.Client{Timeout: 20 * time.Second},
		token:   strings.TrimSpace(cfg.Token),
		hash:    DefaultQueryHash,
		base:    DefaultBaseURL,
		booking: DefaultBookingBaseURL,
	}
	if h := strings.TrimSpace(cfg.QueryHash); h != "" {
		p.hash = h
	}
	if cfg.BaseURL != "" {
		p.base = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.BookingBaseURL != "" {
		p.booking = cfg.BookingBaseURL
	}
	return p
}

func (p *Provider) Name() reservation.Platform { return reservation.PlatformOpenTable }

func (p *Provider) Ping(ctx context.Context) error {
	if p.token == "" {
		return errors.New("OPENTABLE_TOKEN is empty")
	}
	return nil
}

type availabilityResponse struct {
	Data struct {
		Availability []struct {
			AvailabilityDays []struct {
				Slots []struct {
					IsAvailable           bool   `json:"isAvailable"`
					ReservationDateTime   string `json:"reservationDateTime"`
					SlotAvailabilityToken string `json:"slotAvailabilityToken"`
					SlotHash              string `json:"slotHash"`
				} `json:"slots"`
			} `json:"availabilityDays"`
		} `json:"availability"`
	} `json:"data"`
}

func (p *Provider) Availability(ctx context.Context, req reservation.Request) ([]reservation.Slot, error) {
	if err := p.Ping(ctx); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"operationName": "RestaurantsAvailability",
		"variables": map[string]any{
			"restaurantIds": []string{req.VenueID},
			"partySize":     req.PartySize,
			"dateTime":      req.Date.Format("2006-01-02") + "T19:00:00.000",
			"forwardDays":   0,
			"includeOffers": true,
		},
		"extensions": map[string]any{
			"persistedQuery": map[string]any{
				"version":    1,
				"sha256Hash": p.hash,
			},
		},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.base+"/fe/gql?optype=query&opname=RestaurantsAvailability", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("content-type", "application/json")
	hreq.Header.Set("user-agent", defaultUA)
	hreq.Header.Set("x-csrf-token", p.token)

	hresp, err := p.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(hresp.Body)
	if err != nil {
		return nil, err
	}
	if hresp.StatusCode < 200 || hresp.StatusCode >= 300 {
		return nil, fmt.Errorf("opentable availability http %d: %s", hresp.StatusCode, truncate(body, 200))
	}

	var parsed availabilityResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("opentable parse availability: %w", err)
	}

	var out []reservation.Slot
	for _, a := range parsed.Data.Availability {
		for _, d := range a.AvailabilityDays {
			for _, s := range d.Slots {
				if !s.IsAvailable {
					continue
				}
				out = append(out, reservation.Slot{
					Time: s.ReservationDateTime,
					Token: url.Values{
						"token": {s.SlotAvailabilityToken},
						"hash":  {s.SlotHash},
					}.Encode(),
				})
			}
		}
	}
	return out, nil
}

// Book builds the booking-details link for slot. It makes no request.
func (p *Provider) Book(_ context.Context, slot reservation.Slot, req reservation.Request) (reservation.Booking, error) {
	tok, err := url.ParseQuery(slot.Token)
	if err != nil || tok.Get("token") == "" {
		return reservation.Booking{}, errors.New("opentable slot is missing its availability token")
	}

	q := url.Values{
		"rid":                   {req.VenueID},
		"covers":                {strconv.Itoa(req.PartySize)},
		"datetime":              {slot.Time},
		"slotAvailabilityToken": {tok.Get("token")},
		"slotHash":              {tok.Get("hash")},
	}
	return reservation.Booking{URL: p.booking + "?" + q.Encode()}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
