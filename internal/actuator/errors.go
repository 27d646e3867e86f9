package actuator

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by CheckAvailable when the control binary is not on PATH.
var ErrNotFound = errors.New("actuator command not found")

// CommandError is a failed invocation of the control binary. Status is -1
// when the process could not be spawned or was killed by a signal.
type CommandError struct {
	Op     string
	Status int
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit status %d: %s", e.Op, e.Status, e.Stderr)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: exit status %d", e.Op, e.Status)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ParseError means the control binary succeeded but printed no usable level.
type ParseError struct {
	Output string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse level from %q: %v", e.Output, e.Err)
	}
	return fmt.Sprintf("no percentage in output %q", e.Output)
}

func (e *ParseError) Unwrap() error { return e.Err }
