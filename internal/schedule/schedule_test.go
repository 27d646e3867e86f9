package schedule

import (
	"errors"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"volramp/internal/level"
	"volramp/internal/occurrence"
)

func TestFromItemsSorts(t *testing.T) {
	t.Parallel()
	s, err := FromItems([]Item{
		{Time: "14:00", Level: 50},
		{Time: "08:00", Level: 20},
		{Time: "09:30", Level: 30},
	}, time.Minute)
	if err != nil {
		t.Fatalf("FromItems error: %v", err)
	}
	want := []string{"08:00", "09:30", "14:00"}
	got := s.Targets()
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Time.String() != want[i] {
			t.Fatalf("targets[%d] = %s, want %s", i, got[i].Time, want[i])
		}
	}
	if got[0].Level.Int() != 20 {
		t.Fatalf("08:00 level = %d, want 20", got[0].Level.Int())
	}
}

func TestFromItemsRejectsWholeSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		items []Item
		kind  error
		index int
	}{
		{
			name:  "bad time",
			items: []Item{{Time: "08:00", Level: 10}, {Time: "25:00", Level: 10}},
			kind:  occurrence.ErrTimeFormat,
			index: 1,
		},
		{
			name:  "bad level",
			items: []Item{{Time: "08:00", Level: 101}, {Time: "09:00", Level: 10}},
			kind:  level.ErrOutOfRange,
			index: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := FromItems(tt.items, time.Minute)
			if s != nil {
				t.Fatal("expected no schedule on error")
			}
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want kind %v", err, tt.kind)
			}
			var ie *ItemError
			if !errors.As(err, &ie) || ie.Index != tt.index {
				t.Fatalf("err = %#v, want ItemError at index %d", err, tt.index)
			}
		})
	}
}

func TestNextEmptyIsTerminal(t *testing.T) {
	t.Parallel()
	s := New(nil, time.Minute)
	now := time.Now()
	for i := 0; i < 3; i++ {
		if _, ok := s.Next(now.Add(time.Duration(i) * time.Hour)); ok {
			t.Fatal("empty schedule produced an invocation")
		}
	}
	var nilSched *Schedule
	if _, ok := nilSched.Next(now); ok {
		t.Fatal("nil schedule produced an invocation")
	}
}

func TestNextEndToEnd(t *testing.T) {
	t.Parallel()
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatal(err)
	}
	s, err := FromItems([]Item{{Time: "17:00", Level: 70}, {Time: "08:00", Level: 30}}, 2*time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		now       time.Time
		wantAt    time.Time
		wantLevel int
	}{
		{
			name:      "morning",
			now:       time.Date(2024, 6, 10, 10, 0, 0, 0, loc),
			wantAt:    time.Date(2024, 6, 10, 17, 0, 0, 0, loc),
			wantLevel: 70,
		},
		{
			name:      "evening",
			now:       time.Date(2024, 6, 10, 18, 0, 0, 0, loc),
			wantAt:    time.Date(2024, 6, 11, 8, 0, 0, 0, loc),
			wantLevel: 30,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, ok := s.Next(tt.now)
			if !ok {
				t.Fatal("expected invocation")
			}
			if !inv.Deadline.Equal(tt.wantAt) || !inv.Occurrence.Equal(tt.wantAt) {
				t.Fatalf("deadline = %v occurrence = %v, want %v", inv.Deadline, inv.Occurrence, tt.wantAt)
			}
			if inv.Level.Int() != tt.wantLevel {
				t.Fatalf("level = %d, want %d", inv.Level.Int(), tt.wantLevel)
			}
			if inv.PreRamp != 2*time.Minute || !inv.Start().Equal(tt.wantAt.Add(-2*time.Minute)) {
				t.Fatalf("start = %v, pre-ramp = %v", inv.Start(), inv.PreRamp)
			}
			if inv.ID == "" {
				t.Fatal("expected invocation id")
			}
		})
	}
}

func TestNextDeadlineKeepsMonotonicReading(t *testing.T) {
	t.Parallel()
	s := New([]Target{{Time: occurrence.TimeOfDay{Hour: 12}, Level: level.MustNew(10)}}, 0).
		InLocation(time.UTC)
	now := time.Now()
	inv, ok := s.Next(now)
	if !ok {
		t.Fatal("expected invocation")
	}
	if got, want := inv.Deadline.Sub(now), inv.Occurrence.Sub(now.In(time.UTC)); got != want {
		t.Fatalf("deadline delta = %v, want %v", got, want)
	}
	// String prints "m=+..." only while a monotonic reading is attached.
	if !strings.Contains(inv.Deadline.String(), "m=") {
		t.Fatalf("deadline lost its monotonic reading: %s", inv.Deadline)
	}
}

func TestNextDuplicateTimesFirstWins(t *testing.T) {
	t.Parallel()
	tod := occurrence.TimeOfDay{Hour: 9}
	s := New([]Target{
		{Time: tod, Level: level.MustNew(11)},
		{Time: tod, Level: level.MustNew(22)},
	}, 0)
	inv, ok := s.Next(time.Date(2024, 1, 1, 6, 0, 0, 0, time.UTC))
	if !ok || inv.Level.Int() != 11 {
		t.Fatalf("got %v ok=%v, want level 11", inv.Level, ok)
	}
}

func TestUpcoming(t *testing.T) {
	t.Parallel()
	s, err := FromItems([]Item{{Time: "08:00", Level: 1}, {Time: "20:00", Level: 2}}, 0)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	got := s.Upcoming(now, 3)
	want := []time.Time{
		time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 8, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 2, 20, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Occurrence.Equal(want[i]) {
			t.Fatalf("upcoming[%d] = %v, want %v", i, got[i].Occurrence, want[i])
		}
	}
}

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	s := Default()
	if s.Len() != 2 || s.PreRamp() != DefaultPreRamp {
		t.Fatalf("default schedule = %d targets, pre-ramp %v", s.Len(), s.PreRamp())
	}
}
