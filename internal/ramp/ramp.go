// Package ramp interpolates an actuator level between two values over a time window.
package ramp

import (
	"math"
	"time"

	"volramp/internal/level"
)

// Smootherstep is the C2-continuous ease t³(6t² − 15t + 10) on [0, 1]:
// zero first and second derivative at both ends.
func Smootherstep(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

// VolumeRamp moves from From to To over [Start, End]. It holds no resources
// and ValueAt is a pure function of its fields and now.
type VolumeRamp struct {
	From  level.Level
	To    level.Level
	Start time.Time
	End   time.Time
}

// New builds a ramp that ends at deadline and opens d earlier.
func New(from, to level.Level, deadline time.Time, d time.Duration) VolumeRamp {
	if d < 0 {
		d = 0
	}
	return VolumeRamp{
		From:  from,
		To:    to,
		Start: deadline.Add(-d),
		End:   deadline,
	}
}

// ValueAt returns From until the window opens, To from the deadline on,
// and the eased interpolation in between.
func (r VolumeRamp) ValueAt(now time.Time) level.Level {
	return level.MustNew(r.Raw(now))
}

// Raw is ValueAt before conversion to a Level: the rounded, clamped integer.
func (r VolumeRamp) Raw(now time.Time) int {
	if !now.After(r.Start) {
		return r.From.Int()
	}
	if !now.Before(r.End) {
		return r.To.Int()
	}

	total := r.End.Sub(r.Start).Seconds()
	t := now.Sub(r.Start).Seconds() / total
	t = Smootherstep(math.Min(math.Max(t, 0), 1))

	from, to := float64(r.From.Int()), float64(r.To.Int())
	v := math.Round(from + (to-from)*t)
	return int(math.Min(math.Max(v, level.Min), level.Max))
}
