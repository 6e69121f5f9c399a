// Package store holds the row encoding shared by the SQL snipe stores.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/resy-sniper/internal/reservation"
	"github.com/example/resy-sniper/internal/snipe"
)

// Columns is the snipes column list in the order ScanSnipe and Args use.
const Columns = "id,platform,restaurant_id,restaurant_name,target_date,party_size,preferred_times,release_at,status,created_at,result"

type Scanner interface {
	Scan(dest ...any) error
}

// Args returns s as insert arguments matching Columns.
func Args(s snipe.Snipe) ([]any, error) {
	times, err := json.Marshal(s.PreferredTimes)
	if err != nil {
		return nil, fmt.Errorf("encode preferred times: %w", err)
	}
	return []any{
		s.ID,
		string(s.Restaurant.Platform),
		s.Restaurant.ID,
		s.Restaurant.Name,
		s.TargetDate,
		s.PartySize,
		string(times),
		s.ReleaseTime.UnixMilli(),
		string(s.Status),
		s.CreatedAt.UnixMilli(),
		s.Result,
	}, nil
}

func ScanSnipe(sc Scanner) (snipe.Snipe, error) {
	var (
		s                    snipe.Snipe
		platform, status     string
		times                []byte
		releaseAt, createdAt int64
	)
	if err := sc.Scan(
		&s.ID, &platform, &s.Restaurant.ID, &s.Restaurant.Name, &s.TargetDate, &s.PartySize,
		&times, &releaseAt, &status, &createdAt, &s.Result,
	); err != nil {
		return snipe.Snipe{}, err
	}
	if err := json.Unmarshal(times, &s.PreferredTimes); err != nil {
		return snipe.Snipe{}, fmt.Errorf("decode preferred times for %s: %w", s.ID, err)
	}
	s.Restaurant.Platform = reservation.Platform(platform)
	s.Status = snipe.Status(status)
	s.ReleaseTime = time.UnixMilli(releaseAt).UTC()
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	return s, nil
}
