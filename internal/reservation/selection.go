package reservation

import (
	"strings"
	"time"
)

// DefaultTolerance is how far a slot may sit from a preferred time and still match.
const DefaultTolerance = 15 * time.Minute

// clockLayouts are tried in order. Inputs are upper-cased first so the PM
// layouts also accept "pm".
var clockLayouts = []string{
	"3:04 PM",
	"3:04PM",
	"3 PM",
	"3PM",
	"15:04",
	"15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	time.RFC3339Nano,
	time.RFC3339,
}

// ParseClock returns the time of day in s as an offset from midnight.
// Accepted forms include "7:30 PM", "7pm", "19:30", "19:30:00" and full
// date-times ("2026-02-15 19:30:00", RFC3339), whose date part is ignored.
func ParseClock(s string) (time.Duration, bool) {
	v := strings.ToUpper(strings.TrimSpace(s))
	if v == "" {
		return 0, false
	}
	v = strings.ReplaceAll(v, "A.M.", "AM")
	v = strings.ReplaceAll(v, "P.M.", "PM")
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, v)
		if err != nil {
			continue
		}
		return time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second, true
	}
	return 0, false
}

// FormatClock renders an offset from midnight as "7:15 PM".
func FormatClock(d time.Duration) string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(d).Format("3:04 PM")
}

type Match struct {
	Slot      Slot
	Preferred string
	Diff      time.Duration
}

// ChooseSlot walks preferred in order and returns the first preference that
// has any slot within tolerance (inclusive). Among several slots matching the
// same preference the nearest wins; equal distances keep the earlier slot.
// Unparseable preferences or slot times never match.
func ChooseSlot(preferred []string, available []Slot, tolerance time.Duration) (Match, bool) {
	if len(available) == 0 {
		return Match{}, false
	}

	clocks := make([]time.Duration, len(available))
	parsed := make([]bool, len(available))
	for i, s := range available {
		clocks[i], parsed[i] = ParseClock(s.Time)
	}

	for _, p := range preferred {
		want, ok := ParseClock(p)
		if !ok {
			continue
		}
		best := -1
		var bestDiff time.Duration
		for i := range available {
			if !parsed[i] {
				continue
			}
			diff := absDuration(clocks[i] - want)
			if diff > tolerance {
				continue
			}
			if best == -1 || diff < bestDiff {
				best, bestDiff = i, diff
			}
		}
		if best >= 0 {
			return Match{Slot: available[best], Preferred: p, Diff: bestDiff}, true
		}
	}
	return Match{}, false
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
