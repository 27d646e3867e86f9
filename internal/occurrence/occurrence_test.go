package occurrence

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("LoadLocation(%q): %v", name, err)
	}
	return loc
}

func TestParse(t *testing.T) {
	t.Parallel()
	good := map[string]TimeOfDay{
		"00:00": {0, 0},
		"08:05": {8, 5},
		"23:59": {23, 59},
	}
	for raw, want := range good {
		got, err := Parse(raw)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("Parse(%q) = %v, want %v", raw, got, want)
		}
		if got.String() != raw {
			t.Fatalf("String() = %q, want %q", got.String(), raw)
		}
	}

	for _, raw := range []string{"25:00", "24:00", "12:60", "8:00", "08:0", "0800", " 08:00", "08:00:00", ""} {
		_, err := Parse(raw)
		if !errors.Is(err, ErrTimeFormat) {
			t.Fatalf("Parse(%q) err = %v, want ErrTimeFormat", raw, err)
		}
	}
}

func TestNextTodayOrTomorrow(t *testing.T) {
	t.Parallel()
	loc := mustLoad(t, "Europe/Berlin")
	tod := TimeOfDay{Hour: 17, Minute: 0}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2024, 6, 10, 10, 0, 0, 0, loc),
			want: time.Date(2024, 6, 10, 17, 0, 0, 0, loc),
		},
		{
			name: "already past",
			now:  time.Date(2024, 6, 10, 18, 0, 0, 0, loc),
			want: time.Date(2024, 6, 11, 17, 0, 0, 0, loc),
		},
		{
			name: "exactly now is past",
			now:  time.Date(2024, 6, 10, 17, 0, 0, 0, loc),
			want: time.Date(2024, 6, 11, 17, 0, 0, 0, loc),
		},
		{
			name: "one nanosecond before",
			now:  time.Date(2024, 6, 10, 16, 59, 59, 999999999, loc),
			want: time.Date(2024, 6, 10, 17, 0, 0, 0, loc),
		},
		{
			name: "month rollover",
			now:  time.Date(2024, 6, 30, 20, 0, 0, 0, loc),
			want: time.Date(2024, 7, 1, 17, 0, 0, 0, loc),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Next(tod, tt.now)
			if !got.Equal(tt.want) {
				t.Fatalf("Next(%v, %v) = %v, want %v", tod, tt.now, got, tt.want)
			}
		})
	}
}

func TestNextAlwaysStrictlyAfterNow(t *testing.T) {
	t.Parallel()
	loc := mustLoad(t, "America/New_York")
	start := time.Date(2024, 3, 9, 0, 0, 0, 0, loc)
	tods := []TimeOfDay{{0, 0}, {1, 30}, {2, 0}, {2, 30}, {3, 0}, {12, 0}, {23, 59}}

	// Sweep two weeks-ish around both transitions at 37-minute steps.
	for _, base := range []time.Time{start, time.Date(2024, 11, 2, 0, 0, 0, 0, loc)} {
		for now := base; now.Before(base.Add(72 * time.Hour)); now = now.Add(37 * time.Minute) {
			for _, tod := range tods {
				got := Next(tod, now)
				if !got.After(now) {
					t.Fatalf("Next(%v, %v) = %v, not after now", tod, now, got)
				}
				if got.Sub(now) > 25*time.Hour {
					t.Fatalf("Next(%v, %v) = %v, more than a day ahead", tod, now, got)
				}
			}
		}
	}
}

func TestNextSpringForwardGap(t *testing.T) {
	t.Parallel()
	loc := mustLoad(t, "America/New_York")
	// 2024-03-10: 02:00 EST jumps to 03:00 EDT; 02:30 does not exist.
	now := time.Date(2024, 3, 10, 0, 30, 0, 0, loc)
	got := Next(TimeOfDay{Hour: 2, Minute: 30}, now)

	want := time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC) // 03:00 EDT
	if !got.Equal(want) {
		t.Fatalf("Next = %v (%v UTC), want %v", got, got.UTC(), want)
	}
	if got.Hour() != 3 || got.Minute() != 0 {
		t.Fatalf("wall clock = %02d:%02d, want 03:00", got.Hour(), got.Minute())
	}
}

func TestNextFallBackAmbiguity(t *testing.T) {
	t.Parallel()
	loc := mustLoad(t, "America/New_York")
	// 2024-11-03: 01:00-02:00 happens twice (EDT then EST).
	now := time.Date(2024, 11, 3, 0, 15, 0, 0, loc)
	got := Next(TimeOfDay{Hour: 1, Minute: 30}, now)

	want := time.Date(2024, 11, 3, 5, 30, 0, 0, time.UTC) // 01:30 EDT, the earlier one
	if !got.Equal(want) {
		t.Fatalf("Next = %v (%v UTC), want %v", got, got.UTC(), want)
	}
	if _, off := got.Zone(); off != -4*3600 {
		t.Fatalf("offset = %d, want EDT (-4h)", off)
	}
}

func TestResolveUnique(t *testing.T) {
	t.Parallel()
	loc := mustLoad(t, "Europe/Berlin")
	got := Resolve(2024, time.January, 15, TimeOfDay{Hour: 8, Minute: 0}, loc)
	want := time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}

func TestResolveUTCNeverProbes(t *testing.T) {
	t.Parallel()
	got := Resolve(2024, time.February, 29, TimeOfDay{Hour: 23, Minute: 59}, time.UTC)
	want := time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Resolve = %v, want %v", got, want)
	}
}
