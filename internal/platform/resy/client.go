// Package resy talks to the Resy API with the key and auth token captured
// from an authenticated browser session. Resy supports direct booking.
package resy

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

const DefaultBaseURL = "https://api.resy.com"

type Credentials struct {
	APIKey    string
	AuthToken string
}

type Client struct {
	hc    *http.Client
	base  string
	creds Credentials
}

var _ reservation.BookingProvider = (*Client)(nil)

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.base = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.hc = hc }
}

func New(creds Credentials, opts ...Option) *Client {
	c := &Client{
		hc:    &http.Client{Timeout: 3 * time.Second},
		base:  DefaultBaseURL,
		creds: creds,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() reservation.Platform { return reservation.PlatformResy }

func (c *Client) Ping(ctx context.Context) error {
	if c.creds.APIKey == "" || c.creds.AuthToken == "" {
		return errors.New("resy credentials are not configured (RESY_API_KEY, RESY_AUTH_TOKEN)")
	}
	status, body, err := c.do(ctx, http.MethodGet, "/2/user", "", nil, nil)
	if err != nil {
		return err
	}
	if status >= 400 {
		return statusError("ping", status, body)
	}
	return nil
}

type findResponse struct {
	Results struct {
		Venues []struct {
			Slots []struct {
				Date struct {
					Start string `json:"start"`
				} `json:"date"`
				Config struct {
					Type  string `json:"type"`
					Token string `json:"token"`
				} `json:"config"`
			} `json:"slots"`
		} `json:"venues"`
	} `json:"results"`
}

// Availability lists open slots. A venue with nothing open yields an empty
// slice, not an error.
func (c *Client) Availability(ctx context.Context, req reservation.Request) ([]reservation.Slot, error) {
	query := url.Values{
		"party_size": {strconv.Itoa(req.PartySize)},
		"venue_id":   {req.VenueID},
		"day":        {req.Date.Format("2006-01-02")},
		// Deprecated upstream but still required.
		"lat":  {"0"},
		"long": {"0"},
	}
	status, body, err := c.do(ctx, http.MethodGet, "/4/find", "", query, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError("find", status, body)
	}

	var res findResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("resy decode find: %w", err)
	}
	var out []reservation.Slot
	for _, v := range res.Results.Venues {
		for _, s := range v.Slots {
			out = append(out, reservation.Slot{Time: s.Date.Start, Token: s.Config.Token, Type: s.Config.Type})
		}
	}
	return out, nil
}

type detailsRequest struct {
	ConfigID  string `json:"config_id"`
	Day       string `json:"day"`
	PartySize int64  `json:"party_size"`
}

type detailsResponse struct {
	BookToken struct {
		Value string `json:"value"`
	} `json:"book_token"`
	User struct {
		PaymentMethods []struct {
			ID int64 `json:"id"`
		} `json:"payment_methods"`
	} `json:"user"`
}

type bookResponse struct {
	ResyToken     string `json:"resy_token"`
	ReservationID int64  `json:"reservation_id"`
}

// Book exchanges the slot token for a book token and submits the
// reservation with the account's first payment method.
func (c *Client) Book(ctx context.Context, slot reservation.Slot, req reservation.Request) (reservation.Booking, error) {
	jb, err := json.Marshal(detailsRequest{
		ConfigID:  slot.Token,
		Day:       req.Date.Format("2006-01-02"),
		PartySize: int64(req.PartySize),
	})
	if err != nil {
		return reservation.Booking{}, err
	}
	status, body, err := c.do(ctx, http.MethodPost, "/3/details", "application/json", nil, jb)
	if err != nil {
		return reservation.Booking{}, err
	}
	if status >= 400 {
		return reservation.Booking{}, statusError("details", status, body)
	}
	var details detailsResponse
	if err := json.Unmarshal(body, &details); err != nil {
		return reservation.Booking{}, fmt.Errorf("resy decode details: %w", err)
	}
	if details.BookToken.Value == "" {
		return reservation.Booking{}, errors.New("resy details returned no book token")
	}

	form := url.Values{"book_token": {details.BookToken.Value}}
	if pm := details.User.PaymentMethods; len(pm) > 0 {
		b, _ := json.Marshal(struct {
			ID int64 `json:"id"`
		}{ID: pm[0].ID})
		form.Set("struct_payment_method", string(b))
	}
	status, body, err = c.do(ctx, http.MethodPost, "/3/book", "application/x-www-form-urlencoded", nil, []byte(form.Encode()))
	if err != nil {
		return reservation.Booking{}, err
	}
	if status >= 400 {
		return reservation.Booking{}, statusError("book", status, body)
	}

	var booked bookResponse
	_ = json.Unmarshal(body, &booked)
	id := booked.ResyToken
	if id == "" && booked.ReservationID != 0 {
		id = strconv.FormatInt(booked.ReservationID, 10)
	}
	if id == "" {
		id = "unknown"
	}
	return reservation.Booking{ConfirmationID: id}, nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, query url.Values, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("user-agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36")
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referrer", "https://resy.com")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, c.creds.APIKey))
	req.Header.Set("x-resy-auth-token", c.creds.AuthToken)
	req.Header.Set("x-resy-universal-auth", c.creds.AuthToken)
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

// statusError surfaces Resy's message field when the body carries one.
func statusError(op string, status int, body []byte) error {
	var r struct {
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &r)
	if r.Message != "" {
		return fmt.Errorf("resy %s failed: %s (status=%d)", op, r.Message, status)
	}
	return fmt.Errorf("resy %s failed (status=%d)", op, status)
}
