// Package worker drives one Invocation to completion: read the current level,
// then push eased values at a fixed cadence until the deadline.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"volramp/internal/actuator"
	"volramp/internal/eventbus"
	"volramp/internal/level"
	"volramp/internal/ramp"
	"volramp/internal/schedule"
	"volramp/pkg/logx"
)

// DefaultInterval is the ramp polling cadence (20 Hz).
const DefaultInterval = 50 * time.Millisecond

// ErrLevelDefect means the ramp produced a value outside [0, 100]. It is a bug,
// never a recoverable condition.
var ErrLevelDefect = errors.New("ramp produced an invalid level")

type State int

const (
	Priming State = iota
	Ramping
	Settled
	Failed
	// Cancelled: the context ended mid-invocation; no further pushes were made.
	Cancelled
)

func (s State) String() string {
	switch s {
	case Priming:
		return "priming"
	case Ramping:
		return "ramping"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outcome is the terminal result of Process.
type Outcome struct {
	State  State
	Err    error
	From   level.Level
	Pushes int
}

func (o Outcome) Settled() bool { return o.State == Settled }

type Options struct {
	Interval time.Duration
	Clock    Clock
	Bus      eventbus.Bus
	Logger   logx.Logger
}

// Worker is stateless between invocations; the last-set memo lives inside Process.
type Worker struct {
	act      actuator.Actuator
	interval time.Duration
	clock    Clock
	bus      eventbus.Bus
	log      logx.Logger
}

func New(act actuator.Actuator, opts Options) *Worker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Bus == nil {
		opts.Bus = eventbus.Nop{}
	}
	return &Worker{
		act:      act,
		interval: opts.Interval,
		clock:    opts.Clock,
		bus:      opts.Bus,
		log:      opts.Logger.With(logx.String("comp", "worker")),
	}
}

// Process runs inv to a terminal state. Actuator errors are not retried.
func (w *Worker) Process(ctx context.Context, inv schedule.Invocation) Outcome {
	log := w.log.With(logx.String("invocation", inv.ID), logx.Int("target", inv.Level.Int()))
	w.publish(eventbus.InvocationStarted, w.payload(inv, Outcome{}))

	out := Outcome{State: Priming}
	from, err := w.act.GetLevel(ctx)
	if err != nil {
		return w.finish(ctx, log, inv, out, fmt.Errorf("read current level: %w", err))
	}
	out.From = from
	out.State = Ramping

	r := ramp.New(from, inv.Level, inv.Deadline, inv.PreRamp)
	log.Info("ramp started",
		logx.Int("from", from.Int()),
		logx.Duration("window", r.End.Sub(r.Start)),
		logx.Time("deadline", inv.Occurrence),
	)

	progress := rate.NewLimiter(rate.Every(time.Second), 1)
	var last level.Level
	hasLast := false
	for {
		if ctx.Err() != nil {
			return w.finish(ctx, log, inv, out, ctx.Err())
		}

		now := w.clock.Now()
		raw := r.Raw(now)
		v, err := level.New(raw)
		if err != nil {
			return w.finish(ctx, log, inv, out, fmt.Errorf("%w: %d: %v", ErrLevelDefect, raw, err))
		}

		if !hasLast || v != last {
			if err := w.push(ctx, log, inv, v, false); err != nil {
				return w.finish(ctx, log, inv, out, err)
			}
			out.Pushes++
			last, hasLast = v, true
		}

		if !now.Before(inv.Deadline) {
			if err := w.push(ctx, log, inv, inv.Level, true); err != nil {
				return w.finish(ctx, log, inv, out, err)
			}
			out.Pushes++
			out.State = Settled
			return w.finish(ctx, log, inv, out, nil)
		}

		if log.Enabled(logx.LevelDebug) && progress.AllowN(now, 1) {
			log.Debug("ramping", logx.Int("level", last.Int()), logx.Duration("remaining", inv.Deadline.Sub(now).Round(time.Second)))
		}

		select {
		case <-ctx.Done():
			return w.finish(ctx, log, inv, out, ctx.Err())
		case <-w.clock.After(w.interval):
		}
	}
}

func (w *Worker) push(ctx context.Context, log logx.Logger, inv schedule.Invocation, v level.Level, final bool) error {
	if err := w.act.SetLevel(ctx, v); err != nil {
		return fmt.Errorf("set level %s: %w", v.Percent(), err)
	}
	log.Trace("level pushed", logx.Int("level", v.Int()), logx.Bool("final", final))
	w.publish(eventbus.LevelPushed, eventbus.Push{InvocationID: inv.ID, Level: v.Int(), Final: final})
	return nil
}

func (w *Worker) finish(ctx context.Context, log logx.Logger, inv schedule.Invocation, out Outcome, err error) Outcome {
	if err != nil {
		out.Err = err
		if ctx.Err() != nil {
			out.State = Cancelled
			log.Info("invocation abandoned", logx.Int("pushes", out.Pushes))
			return out
		}
		out.State = Failed
		log.Error("invocation failed", logx.Int("pushes", out.Pushes), logx.Err(err))
		w.publish(eventbus.InvocationFailed, w.payload(inv, out))
		return out
	}
	log.Info("invocation settled", logx.Int("pushes", out.Pushes))
	w.publish(eventbus.InvocationSettled, w.payload(inv, out))
	return out
}

func (w *Worker) payload(inv schedule.Invocation, out Outcome) eventbus.Invocation {
	p := eventbus.Invocation{
		ID:       inv.ID,
		Target:   inv.Level.Int(),
		Deadline: inv.Occurrence,
		PreRamp:  inv.PreRamp,
		From:     out.From.Int(),
		Pushes:   out.Pushes,
	}
	if out.Err != nil {
		p.Err = out.Err.Error()
	}
	return p
}

func (w *Worker) publish(typ string, data any) {
	w.bus.Publish(eventbus.Event{Type: typ, Time: w.clock.Now(), Data: data})
}
