package ramp

import (
	"math"
	"testing"
	"time"

	"volramp/internal/level"
)

func TestSmootherstepEndpoints(t *testing.T) {
	t.Parallel()
	if Smootherstep(0) != 0 || Smootherstep(1) != 1 {
		t.Fatalf("endpoints: f(0)=%v f(1)=%v", Smootherstep(0), Smootherstep(1))
	}
	if got := Smootherstep(0.5); math.Abs(got-0.5) > 1e-12 {
		t.Fatalf("f(0.5) = %v, want 0.5", got)
	}
	prev := 0.0
	for i := 1; i <= 1000; i++ {
		v := Smootherstep(float64(i) / 1000)
		if v < prev {
			t.Fatalf("not monotonic at %d: %v < %v", i, v, prev)
		}
		prev = v
	}
}

func TestValueAtOutsideWindow(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for from := 0; from <= 100; from += 10 {
		for to := 0; to <= 100; to += 25 {
			r := New(level.MustNew(from), level.MustNew(to), deadline, time.Minute)
			for _, now := range []time.Time{r.Start.Add(-time.Hour), r.Start} {
				if got := r.ValueAt(now); got.Int() != from {
					t.Fatalf("from=%d to=%d ValueAt(%v) = %d, want from", from, to, now, got.Int())
				}
			}
			for _, now := range []time.Time{r.End, r.End.Add(time.Hour)} {
				if got := r.ValueAt(now); got.Int() != to {
					t.Fatalf("from=%d to=%d ValueAt(%v) = %d, want to", from, to, now, got.Int())
				}
			}
		}
	}
}

func TestValueAtMonotonic(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		from, to int
	}{
		{"up", 20, 80},
		{"down", 90, 5},
		{"full up", 0, 100},
		{"full down", 100, 0},
		{"flat", 33, 33},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(level.MustNew(tt.from), level.MustNew(tt.to), deadline, 60*time.Second)
			prev := r.ValueAt(r.Start).Int()
			for now := r.Start; !now.After(r.End.Add(time.Second)); now = now.Add(50 * time.Millisecond) {
				v := r.ValueAt(now).Int()
				if tt.from <= tt.to && v < prev {
					t.Fatalf("decreased at %v: %d -> %d", now.Sub(r.Start), prev, v)
				}
				if tt.from >= tt.to && v > prev {
					t.Fatalf("increased at %v: %d -> %d", now.Sub(r.Start), prev, v)
				}
				prev = v
			}
		})
	}
}

func TestValueAtMidpoint(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	r := New(level.MustNew(20), level.MustNew(80), deadline, 60*time.Second)
	if got := r.ValueAt(deadline.Add(-30 * time.Second)).Int(); got != 50 {
		t.Fatalf("midpoint = %d, want 50", got)
	}
	// Idempotent: repeated and out-of-order queries agree.
	a := r.ValueAt(deadline.Add(-10 * time.Second))
	_ = r.ValueAt(deadline.Add(-50 * time.Second))
	if b := r.ValueAt(deadline.Add(-10 * time.Second)); a != b {
		t.Fatalf("ValueAt not repeatable: %v vs %v", a, b)
	}
}

func TestZeroDurationRampJumpsAtDeadline(t *testing.T) {
	t.Parallel()
	deadline := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	r := New(level.MustNew(10), level.MustNew(90), deadline, 0)
	if got := r.ValueAt(deadline.Add(-time.Millisecond)).Int(); got != 10 {
		t.Fatalf("before deadline = %d, want 10", got)
	}
	if got := r.ValueAt(deadline).Int(); got != 90 {
		t.Fatalf("at deadline = %d, want 90", got)
	}
}
