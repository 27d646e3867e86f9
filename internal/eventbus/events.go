package eventbus

import "time"

const (
	InvocationScheduled = "invocation.scheduled"
	InvocationStarted   = "invocation.started"
	InvocationSettled   = "invocation.settled"
	InvocationFailed    = "invocation.failed"
	LevelPushed         = "level.pushed"
	ScheduleReloaded    = "schedule.reloaded"
)

// Invocation accompanies the invocation.* events.
type Invocation struct {
	ID       string
	Target   int
	Deadline time.Time
	PreRamp  time.Duration
	From     int // set once priming succeeded
	Pushes   int
	Err      string
}

// Push accompanies level.pushed.
type Push struct {
	InvocationID string
	Level        int
	Final        bool
}

// Reload accompanies schedule.reloaded.
type Reload struct {
	Targets  int
	Fallback bool
	Summary  string
}
