// Package platform maps a snipe's platform to the client that serves it.
package platform

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/resy-sniper/internal/reservation"
)

type Registry struct {
	providers map[reservation.Platform]reservation.BookingProvider
}

func NewRegistry(providers ...reservation.BookingProvider) *Registry {
	r := &Registry{providers: make(map[reservation.Platform]reservation.BookingProvider)}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

func (r *Registry) Provider(p reservation.Platform) (reservation.BookingProvider, error) {
	bp, ok := r.providers[p]
	if !ok {
		return nil, fmt.Errorf("no client registered for platform %q", p)
	}
	return bp, nil
}

func (r *Registry) Platforms() []reservation.Platform {
	out := make([]reservation.Platform, 0, len(r.providers))
	for p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PingAll pings every registered platform and returns the failures by name.
func (r *Registry) PingAll(ctx context.Context) map[reservation.Platform]error {
	out := make(map[reservation.Platform]error, len(r.providers))
	for _, p := range r.Platforms() {
		out[p] = r.providers[p].Ping(ctx)
	}
	return out
}
