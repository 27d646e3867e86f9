// Package level implements the bounded 0..100 percentage an actuator is driven to.
package level

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	Min = 0
	Max = 100
)

var (
	// ErrOutOfRange is matched (errors.Is) by every *RangeError.
	ErrOutOfRange = errors.New("level out of range")
	ErrParse      = errors.New("invalid level")
)

// RangeError reports a value outside [Min, Max].
type RangeError struct {
	Value int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("level %d is out of range (%d..=%d allowed)", e.Value, Min, Max)
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }

// Level is an actuator setting in [0, 100]. Values are only obtainable through
// New/Parse/MustNew, so a Level in hand is always valid.
type Level struct {
	v uint8
}

// New validates v. Out-of-range values are rejected, never clamped.
func New(v int) (Level, error) {
	if v < Min || v > Max {
		return Level{}, &RangeError{Value: v}
	}
	return Level{v: uint8(v)}, nil
}

// MustNew is New for literals known to be valid; it panics otherwise.
func MustNew(v int) Level {
	l, err := New(v)
	if err != nil {
		panic(err)
	}
	return l
}

// Parse accepts a decimal integer with an optional trailing '%' ("54", "54%").
func Parse(s string) (Level, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(s), "%")
	n, err := strconv.Atoi(raw)
	if err != nil {
		return Level{}, fmt.Errorf("%w %q: %w", ErrParse, s, err)
	}
	return New(n)
}

func (l Level) Int() int { return int(l.v) }

func (l Level) Uint8() uint8 { return l.v }

// String renders the bare number ("54").
func (l Level) String() string { return strconv.Itoa(int(l.v)) }

// Percent renders the actuator argument form ("54%").
func (l Level) Percent() string { return l.String() + "%" }
