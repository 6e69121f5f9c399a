package snipe

import (
	"fmt"
	"time"
)

// ReleaseAt computes when slots for targetDate open on a platform that
// releases them daysOut days ahead at the local wall-clock time clock (HH:MM)
// in loc.
func ReleaseAt(targetDate string, daysOut int, clock string, loc *time.Location) (time.Time, error) {
	if daysOut < 0 {
		return time.Time{}, invalidf("days_out", "must not be negative")
	}
	d, err := time.Parse(DateLayout, targetDate)
	if err != nil {
		return time.Time{}, invalidf("target_date", "want YYYY-MM-DD, got %q", targetDate)
	}
	open := d.AddDate(0, 0, -daysOut).Format(DateLayout)
	at, err := time.ParseInLocation(DateLayout+" 15:04", open+" "+clock, loc)
	if err != nil {
		return time.Time{}, invalidf("release_time", "want HH:MM, got %q", clock)
	}
	return at.UTC(), nil
}

// LoadLocation loads a named zone, reporting a bad name as a validation error.
func LoadLocation(name string) (*time.Location, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidf("timezone", "%v", fmt.Errorf("unknown zone %q: %w", name, err))
	}
	return loc, nil
}
