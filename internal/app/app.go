// Package app wires configuration, logging, the actuator and the worker into
// the long-running scheduler loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"

	"volramp/internal/actuator"
	"volramp/internal/config"
	"volramp/internal/eventbus"
	"volramp/internal/notify/telegram"
	"volramp/internal/observability/debugsrv"
	"volramp/internal/observability/metrics"
	"volramp/internal/report"
	"volramp/internal/runtime/supervisor"
	"volramp/internal/schedule"
	"volramp/internal/worker"
	"volramp/pkg/logx"
	"volramp/pkg/systemd"
)

// ErrDependency marks a failed startup dependency check.
var ErrDependency = errors.New("dependency check failed")

type Options struct {
	ConfigPath string
	// Fs defaults to the OS filesystem.
	Fs afero.Fs
	// Actuator overrides the pactl actuator built from config.
	Actuator actuator.Actuator
	// Clock defaults to the system clock.
	Clock worker.Clock
	// Interval overrides the ramp cadence.
	Interval time.Duration
	// Logger skips building the logging service from config.
	Logger *logx.Logger
	// Watch enables config hot reload via fsnotify.
	Watch bool
}

type App struct {
	cfgm  *config.Manager
	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	clock worker.Clock

	act     actuator.Actuator
	worker  *worker.Worker
	metrics *metrics.Metrics
	report  *report.Reporter
	debug   *debugsrv.Server
	watch   bool

	// reloaded wakes the driver while it waits for the next pre-ramp window.
	reloaded chan struct{}

	mu     sync.RWMutex
	snap   config.Snapshot
	status Status
	sup    *supervisor.Supervisor
}

// Status is served on /healthz.
type Status struct {
	State    string              `json:"state"`
	Targets  int                 `json:"targets"`
	Fallback bool                `json:"fallback"`
	NextAt   *time.Time          `json:"next_at,omitempty"`
	NextTo   int                 `json:"next_level,omitempty"`
	LastErr  string              `json:"last_err,omitempty"`
	Runtime  supervisor.Snapshot `json:"runtime"`
	Dropped  uint64              `json:"events_dropped"`
	Started  time.Time           `json:"started"`
	Invoked  int                 `json:"invocations"`
	Failures int                 `json:"failures"`
}

func New(opts Options) *App {
	cfgm := config.NewManager(opts.ConfigPath, opts.Fs)
	boot := logx.NewConsole("info")
	if opts.Logger != nil {
		boot = *opts.Logger
	}
	cfgm.SetLogger(boot)
	snap := cfgm.Load()
	cfg := snap.Config

	var (
		log  logx.Logger
		logs *logx.Service
	)
	if opts.Logger != nil {
		log = *opts.Logger
	} else {
		var sender logx.Sender
		if cfg.Logging.Telegram.Enabled {
			s, err := telegram.New(cfg.Logging.Telegram.Token)
			if err != nil {
				boot.Warn("telegram log sink disabled", logx.Err(err))
			} else {
				sender = s
			}
		}
		logs, log = logx.New(cfg.LogConfig(), sender)
	}
	cfgm.SetLogger(log)

	clock := opts.Clock
	if clock == nil {
		clock = worker.SystemClock{}
	}
	act := opts.Actuator
	if act == nil {
		act = actuator.NewPactl(cfg.ActuatorConfig(), log)
	}
	bus := eventbus.New()

	a := &App{
		cfgm:     cfgm,
		log:      log.With(logx.String("comp", "app")),
		logs:     logs,
		bus:      bus,
		clock:    clock,
		act:      act,
		worker:   worker.New(act, worker.Options{Interval: opts.Interval, Clock: clock, Bus: bus, Logger: log}),
		metrics:  metrics.New(bus),
		watch:    opts.Watch,
		reloaded: make(chan struct{}, 1),
		snap:     snap,
		status:   Status{State: "starting", Started: time.Now()},
	}
	a.report = report.New(a.Schedule, log)
	if cfg.Debug.Enabled {
		a.debug = debugsrv.New(debugsrv.Config{Addr: cfg.DebugAddr(), Token: cfg.Debug.Token}, a.metrics.Handler(), func() any { return a.Status() }, log)
	}
	return a
}

// Schedule is the schedule currently in effect.
func (a *App) Schedule() *schedule.Schedule {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Schedule
}

func (a *App) Snapshot() config.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap
}

func (a *App) Status() Status {
	a.mu.RLock()
	st := a.status
	snap := a.snap
	sup := a.sup
	a.mu.RUnlock()
	st.Targets = snap.Schedule.Len()
	st.Fallback = snap.Fallback
	if sup != nil {
		st.Runtime = sup.Snapshot()
	}
	st.Dropped = a.bus.Dropped()
	return st
}

func (a *App) setState(fn func(st *Status)) {
	a.mu.Lock()
	fn(&a.status)
	a.mu.Unlock()
}

// CheckDependencies verifies the actuator binary resolves and answers a read.
func (a *App) CheckDependencies(ctx context.Context) error {
	if p, ok := a.act.(interface{ CheckAvailable() (string, error) }); ok {
		path, err := p.CheckAvailable()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrDependency, err)
		}
		a.log.Debug("actuator binary found", logx.String("path", path))
	}
	lv, err := a.act.GetLevel(ctx)
	if err != nil {
		return fmt.Errorf("%w: read current level: %v", ErrDependency, err)
	}
	a.log.Info("actuator ready", logx.Int("level", lv.Int()))
	return nil
}

// Run drives the schedule until ctx ends (nil) or an invocation fails under
// the stop policy (non-nil).
func (a *App) Run(ctx context.Context) error {
	sup := supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.mu.Lock()
	a.sup = sup
	a.mu.Unlock()

	// Subscribe before the first publish so the initial schedule is observed.
	events, unsub := a.bus.Subscribe(256)
	sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.logEvents(c, events)
	})
	mevents, munsub := a.bus.Subscribe(256)
	sup.Go0("metrics", func(c context.Context) {
		defer munsub()
		a.metrics.Consume(c, mevents)
	})

	snap := a.Snapshot()
	a.announce(snap)

	if err := a.report.Apply(snap.Config.Report.Schedule, snap.Schedule.Location()); err != nil {
		a.log.Warn("report disabled", logx.Err(err))
	}
	sup.Go("report", a.report.Run)

	if a.debug != nil {
		// Optional; a failure here never stops the scheduler.
		sup.Go0("debug.http", func(c context.Context) {
			if err := a.debug.Run(c); err != nil {
				a.log.Error("debug server stopped", logx.Err(err))
			}
		})
	}

	if a.watch {
		sup.GoRestart("config.watch", time.Second, 30*time.Second, a.cfgm.Watch)
		sub := a.cfgm.Subscribe(4)
		sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.applyReloads(c, sub)
		})
	}

	a.notifySystemd(sup)
	sup.Go("driver", a.drive)

	err := sup.Wait(context.Background())
	systemd.Stopping()
	a.setState(func(st *Status) { st.State = "stopped" })
	if a.logs != nil {
		defer func() { _ = a.logs.Close() }()
	}
	if err != nil {
		a.log.Error("scheduler stopped", logx.Err(err))
		return err
	}
	a.log.Info("scheduler stopped")
	return nil
}

// drive is the sequential wait → process → repeat loop.
func (a *App) drive(ctx context.Context) error {
	// floor is the last processed deadline. Planning never starts before it,
	// so an invocation that failed early is not immediately picked again.
	var floor time.Time
	for {
		now := a.clock.Now()
		if now.Before(floor) {
			now = floor
		}
		sched := a.Schedule()
		inv, ok := sched.Next(now)
		if !ok {
			a.setState(func(st *Status) { st.State = "idle"; st.NextAt = nil })
			a.log.Warn("schedule is empty; waiting for a config change")
			select {
			case <-ctx.Done():
				return nil
			case <-a.reloaded:
				continue
			}
		}

		at := inv.Occurrence
		a.setState(func(st *Status) { st.State = "waiting"; st.NextAt = &at; st.NextTo = inv.Level.Int() })
		a.bus.Publish(eventbus.Event{Type: eventbus.InvocationScheduled, Data: eventbus.Invocation{
			ID: inv.ID, Target: inv.Level.Int(), Deadline: inv.Occurrence, PreRamp: inv.PreRamp,
		}})
		a.log.Info("next invocation",
			logx.String("invocation", inv.ID),
			logx.String("at", inv.Time.String()),
			logx.Int("target", inv.Level.Int()),
			logx.Time("deadline", inv.Occurrence),
			logx.Time("ramp_start", inv.Occurrence.Add(-inv.PreRamp)),
		)

		if wait := inv.Start().Sub(a.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-a.reloaded:
				a.log.Info("schedule replaced; re-planning")
				continue
			case <-a.clock.After(wait):
			}
		}

		a.setState(func(st *Status) { st.State = "ramping" })
		out := a.worker.Process(ctx, inv)
		if out.State == worker.Cancelled {
			return nil
		}
		floor = inv.Deadline
		a.setState(func(st *Status) {
			st.Invoked++
			if out.State == worker.Failed {
				st.Failures++
				st.LastErr = out.Err.Error()
			}
		})
		if out.Settled() {
			continue
		}
		if a.Snapshot().Config.ContinueOnFailure() {
			a.log.Warn("invocation failed; continuing with the next one", logx.String("invocation", inv.ID))
			continue
		}
		return fmt.Errorf("invocation %s at %s: %w", inv.ID, inv.Time, out.Err)
	}
}

// applyReloads installs each published snapshot. A running ramp keeps its
// invocation; the driver picks up the new schedule on its next query.
func (a *App) applyReloads(ctx context.Context, sub <-chan config.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub:
			if !ok {
				return
			}
			prev := a.Snapshot()
			a.mu.Lock()
			a.snap = snap
			a.mu.Unlock()

			if a.logs != nil {
				a.logs.Apply(snap.Config.LogConfig())
			}
			if err := a.report.Apply(snap.Config.Report.Schedule, snap.Schedule.Location()); err != nil {
				a.log.Warn("report disabled", logx.Err(err))
			}
			changed, _ := config.SummarizeChange(prev.Config, snap.Config)
			for _, sec := range changed {
				if sec == "actuator" || sec == "debug" {
					a.log.Warn("config section changed; restart required", logx.String("section", sec))
				}
			}
			a.announce(snap)
			select {
			case a.reloaded <- struct{}{}:
			default:
			}
		}
	}
}

func (a *App) announce(snap config.Snapshot) {
	summary := ""
	if snap.Err != nil {
		summary = snap.Err.Error()
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ScheduleReloaded, Data: eventbus.Reload{
		Targets: snap.Schedule.Len(), Fallback: snap.Fallback, Summary: summary,
	}})
	targets := make([]string, 0, snap.Schedule.Len())
	for _, t := range snap.Schedule.Targets() {
		targets = append(targets, t.Time.String()+"="+t.Level.Percent())
	}
	a.log.Info("schedule loaded",
		logx.String("targets", strings.Join(targets, " ")),
		logx.Duration("ramp", snap.Schedule.PreRamp()),
		logx.Bool("fallback", snap.Fallback),
	)
}

func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			// per-push noise is already traced by the worker
			if e.Type == eventbus.LevelPushed || !a.log.Enabled(logx.LevelDebug) {
				continue
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
		}
	}
}

// notifySystemd reports readiness and feeds the watchdog when run as a
// systemd unit. Outside systemd every call is a no-op.
func (a *App) notifySystemd(sup *supervisor.Supervisor) {
	if ok, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("systemd notified ready")
	}
	if interval := systemd.WatchdogInterval(); interval > 0 {
		sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, interval, func() string { return a.Status().State })
		})
	}
}
