// Package occurrence turns a wall-clock time of day into the next concrete instant.
//
// Resolution rules for a local date+time:
//   - unique offset: use it
//   - ambiguous (clocks fall back): the earlier instant
//   - nonexistent (clocks spring forward): probe forward a minute at a time
package occurrence

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var ErrTimeFormat = errors.New("invalid time of day")

// ParseError reports a time string that is not strict 24-hour HH:MM.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid time of day %q (want HH:MM, 00:00..23:59)", e.Raw)
}

func (e *ParseError) Is(target error) bool { return target == ErrTimeFormat }

// TimeOfDay is an hour:minute with no date or zone attached.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var reHHMM = regexp.MustCompile(`^(\d{2}):(\d{2})$`)

// Parse accepts exactly "HH:MM" with HH in 00..23 and MM in 00..59.
func Parse(raw string) (TimeOfDay, error) {
	m := reHHMM.FindStringSubmatch(raw)
	if len(m) != 3 {
		return TimeOfDay{}, &ParseError{Raw: raw}
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if h > 23 || mm > 59 {
		return TimeOfDay{}, &ParseError{Raw: raw}
	}
	return TimeOfDay{Hour: h, Minute: mm}, nil
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes returns minutes since midnight; used for ordering.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

func (t TimeOfDay) Before(o TimeOfDay) bool { return t.Minutes() < o.Minutes() }

// Next returns the next instant strictly after now at which the wall clock in
// now's location reads tod: today if still ahead, otherwise tomorrow.
// An occurrence equal to now counts as already past.
func Next(tod TimeOfDay, now time.Time) time.Time {
	loc := now.Location()
	y, m, d := now.Date()

	today := Resolve(y, m, d, tod, loc)
	if today.After(now) {
		return today
	}
	return Resolve(y, m, d+1, tod, loc)
}

// maxProbe bounds the forward search through a skipped wall-clock range.
// Real-world gaps are at most a day (e.g. Pacific/Apia, 2011-12-30).
const maxProbe = 48 * time.Hour

// Resolve maps a local calendar date and time of day to an instant in loc.
// Day overflow (d+1 at month end) is normalized as time.Date does.
func Resolve(y int, m time.Month, d int, tod TimeOfDay, loc *time.Location) time.Time {
	wall := time.Date(y, m, d, tod.Hour, tod.Minute, 0, 0, time.UTC)
	for probe := time.Duration(0); probe <= maxProbe; probe += time.Minute {
		if t, ok := resolveWall(wall.Add(probe), loc); ok {
			return t
		}
	}
	// Unreachable for real zone data; fall back to the runtime's own normalization.
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), wall.Minute(), 0, 0, loc)
}

// resolveWall finds the earliest instant whose wall clock in loc equals wall
// (wall carries the naive fields in UTC). ok is false when the wall time is skipped.
func resolveWall(wall time.Time, loc *time.Location) (time.Time, bool) {
	var (
		best  time.Time
		found bool
		seen  = make(map[int]struct{}, 3)
	)
	// Any instant for this wall time lies within ±14h of it, so the offsets in
	// effect a day either side cover every candidate.
	for _, shift := range []time.Duration{-24 * time.Hour, 0, 24 * time.Hour} {
		_, off := wall.Add(shift).In(loc).Zone()
		if _, dup := seen[off]; dup {
			continue
		}
		seen[off] = struct{}{}

		cand := wall.Add(-time.Duration(off) * time.Second).In(loc)
		if !sameWall(cand, wall) {
			continue
		}
		if !found || cand.Before(best) {
			best, found = cand, true
		}
	}
	return best, found
}

func sameWall(t, wall time.Time) bool {
	y1, m1, d1 := t.Date()
	y2, m2, d2 := wall.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 &&
		t.Hour() == wall.Hour() && t.Minute() == wall.Minute() && t.Second() == wall.Second()
}
