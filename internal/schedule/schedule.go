// Package schedule holds the daily targets and answers "what happens next".
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"volramp/internal/level"
	"volramp/internal/occurrence"
)

// Target is one configured entry: reach Level at Time every day.
type Target struct {
	Time  occurrence.TimeOfDay
	Level level.Level
}

// Item is a raw, unvalidated schedule entry as it comes out of configuration.
type Item struct {
	Time  string
	Level int
}

// ItemError wraps the failure of one raw item. errors.Is still sees
// occurrence.ErrTimeFormat or level.ErrOutOfRange through it.
type ItemError struct {
	Index int
	Item  Item
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("schedule[%d] (time=%q volume=%d): %v", e.Index, e.Item.Time, e.Item.Level, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// Invocation is one concrete scheduled change, derived fresh on every Next call.
type Invocation struct {
	ID    string
	Time  occurrence.TimeOfDay
	Level level.Level

	// Deadline carries the monotonic reading of the now passed to Next, so
	// waits measured against time.Now() ignore wall-clock adjustments.
	Deadline time.Time
	// Occurrence is the wall-clock instant Deadline was derived from (for display).
	Occurrence time.Time
	PreRamp    time.Duration
}

// Start is when the pre-ramp window opens.
func (inv Invocation) Start() time.Time { return inv.Deadline.Add(-inv.PreRamp) }

// Schedule is immutable after construction.
type Schedule struct {
	targets []Target
	preRamp time.Duration
	loc     *time.Location
}

// New sorts a copy of targets ascending by time of day (stable, so equal
// times keep their given order).
func New(targets []Target, preRamp time.Duration) *Schedule {
	ts := append([]Target(nil), targets...)
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Time.Before(ts[j].Time) })
	if preRamp < 0 {
		preRamp = 0
	}
	return &Schedule{targets: ts, preRamp: preRamp}
}

// FromItems parses every item strictly; one bad item rejects the whole schedule.
func FromItems(items []Item, preRamp time.Duration) (*Schedule, error) {
	targets := make([]Target, 0, len(items))
	for i, it := range items {
		tod, err := occurrence.Parse(it.Time)
		if err != nil {
			return nil, &ItemError{Index: i, Item: it, Err: err}
		}
		lv, err := level.New(it.Level)
		if err != nil {
			return nil, &ItemError{Index: i, Item: it, Err: err}
		}
		targets = append(targets, Target{Time: tod, Level: lv})
	}
	return New(targets, preRamp), nil
}

// InLocation returns a copy that resolves occurrences in loc instead of the
// location of the now passed to Next.
func (s *Schedule) InLocation(loc *time.Location) *Schedule {
	cp := *s
	cp.loc = loc
	return &cp
}

func (s *Schedule) Targets() []Target {
	if s == nil {
		return nil
	}
	return append([]Target(nil), s.targets...)
}

func (s *Schedule) PreRamp() time.Duration { return s.preRamp }

func (s *Schedule) Location() *time.Location { return s.loc }

func (s *Schedule) Len() int {
	if s == nil {
		return 0
	}
	return len(s.targets)
}

// Next returns the globally earliest upcoming occurrence. ok is false only
// for an empty schedule, which stays empty.
func (s *Schedule) Next(now time.Time) (Invocation, bool) {
	if s == nil || len(s.targets) == 0 {
		return Invocation{}, false
	}
	wallNow := now
	if s.loc != nil {
		wallNow = now.In(s.loc)
	}

	best := -1
	var bestAt time.Time
	for i, t := range s.targets {
		at := occurrence.Next(t.Time, wallNow)
		if best < 0 || at.Before(bestAt) {
			best, bestAt = i, at
		}
	}

	t := s.targets[best]
	return Invocation{
		ID:         uuid.NewString(),
		Time:       t.Time,
		Level:      t.Level,
		Deadline:   now.Add(bestAt.Sub(wallNow)),
		Occurrence: bestAt,
		PreRamp:    s.preRamp,
	}, true
}

// Upcoming lists the next n invocations in order, for previews.
func (s *Schedule) Upcoming(now time.Time, n int) []Invocation {
	out := make([]Invocation, 0, n)
	cur := now
	for len(out) < n {
		inv, ok := s.Next(cur)
		if !ok {
			break
		}
		out = append(out, inv)
		cur = inv.Deadline
	}
	return out
}

// Default is the built-in schedule used when configuration is missing or invalid.
func Default() *Schedule {
	return New([]Target{
		{Time: occurrence.TimeOfDay{Hour: 8, Minute: 0}, Level: level.MustNew(54)},
		{Time: occurrence.TimeOfDay{Hour: 9, Minute: 0}, Level: level.MustNew(23)},
	}, DefaultPreRamp)
}

const DefaultPreRamp = 3 * time.Minute
