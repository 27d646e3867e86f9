package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"volramp/internal/actuator"
	"volramp/internal/config"
	"volramp/internal/level"
	"volramp/pkg/logx"
)

type stepClock struct {
	mu      sync.Mutex
	now     time.Time
	onAfter func(now time.Time)
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	if c.onAfter != nil {
		c.onAfter(now)
	}
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type fakeActuator struct {
	mu      sync.Mutex
	current level.Level
	setErr  error
	getErr  error
	pushes  []int
}

func (f *fakeActuator) GetLevel(context.Context) (level.Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.getErr
}

func (f *fakeActuator) SetLevel(_ context.Context, l level.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.current = l
	f.pushes = append(f.pushes, l.Int())
	return nil
}

func (f *fakeActuator) level() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current.Int()
}

func newTestApp(t *testing.T, body string, act *fakeActuator, clk *stepClock) *App {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "config.toml", []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	nop := logx.Nop()
	return New(Options{
		ConfigPath: "config.toml",
		Fs:         fs,
		Actuator:   act,
		Clock:      clk,
		Interval:   time.Second,
		Logger:     &nop,
	})
}

const twoTargets = `
ramp_duration_seconds = 60
timezone = "UTC"

[[schedule]]
time = "08:00"
volume = 60

[[schedule]]
time = "17:00"
volume = 25
`

func TestDriveRunsNextInvocation(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := &stepClock{now: start}
	clk.onAfter = func(now time.Time) {
		if now.Hour() >= 12 {
			cancel()
		}
	}
	act := &fakeActuator{current: level.MustNew(10)}
	a := newTestApp(t, twoTargets, act, clk)

	if err := a.drive(ctx); err != nil {
		t.Fatalf("drive = %v", err)
	}
	if got := act.level(); got != 60 {
		t.Fatalf("level = %d, want 60 after the 08:00 invocation", got)
	}
	if act.pushes[0] != 10 {
		t.Fatalf("first push = %d, want the primed level 10", act.pushes[0])
	}
	st := a.Status()
	if st.Invoked != 1 || st.Failures != 0 {
		t.Fatalf("status = %+v", st)
	}
	if st.NextAt == nil || st.NextAt.Hour() != 17 || st.NextTo != 25 {
		t.Fatalf("next = %v/%d, want 17:00/25", st.NextAt, st.NextTo)
	}
}

func TestDriveStopPolicy(t *testing.T) {
	t.Parallel()
	clk := &stepClock{now: time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)}
	boom := &actuator.CommandError{Op: "pactl set-sink-volume", Status: 1, Stderr: "No such entity"}
	act := &fakeActuator{current: level.MustNew(10), setErr: boom}
	a := newTestApp(t, twoTargets, act, clk)

	err := a.drive(context.Background())
	var ce *actuator.CommandError
	if !errors.As(err, &ce) {
		t.Fatalf("drive = %v, want CommandError", err)
	}
	if st := a.Status(); st.Failures != 1 || st.LastErr == "" {
		t.Fatalf("status = %+v", st)
	}
}

func TestDriveContinuePolicy(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	clk := &stepClock{now: start}
	clk.onAfter = func(now time.Time) {
		if now.Sub(start) > 36*time.Hour {
			cancel()
		}
	}
	act := &fakeActuator{current: level.MustNew(10), setErr: errors.New("spawn failed")}
	a := newTestApp(t, "on_failure = \"continue\"\n"+twoTargets, act, clk)

	if err := a.drive(ctx); err != nil {
		t.Fatalf("drive = %v, want nil under continue policy", err)
	}
	if st := a.Status(); st.Failures < 3 {
		t.Fatalf("failures = %d, want the loop to keep going", st.Failures)
	}
}

func TestDriveEmptyScheduleWaits(t *testing.T) {
	t.Parallel()
	act := &fakeActuator{}
	a := newTestApp(t, "ramp_duration_seconds = 60\nschedule = []\n", act, &stepClock{now: time.Now()})
	if a.Snapshot().Fallback {
		t.Fatalf("empty schedule is valid, got fallback: %v", a.Snapshot().Err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.drive(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("drive = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drive did not return")
	}
	if len(act.pushes) != 0 {
		t.Fatal("empty schedule pushed levels")
	}
}

func TestApplyReloadsSwapsSchedule(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, twoTargets, &fakeActuator{}, &stepClock{now: time.Now()})

	fresh := config.Default()
	sched, err := fresh.BuildSchedule()
	if err != nil {
		t.Fatal(err)
	}
	sub := make(chan config.Snapshot, 1)
	sub <- config.Snapshot{Config: fresh, Schedule: sched}
	close(sub)
	a.applyReloads(context.Background(), sub)

	if got := a.Schedule().Targets()[0].Level.Int(); got != 54 {
		t.Fatalf("schedule not replaced, first level %d", got)
	}
	select {
	case <-a.reloaded:
	default:
		t.Fatal("driver was not woken")
	}
}

func TestCheckDependencies(t *testing.T) {
	t.Parallel()
	ok := newTestApp(t, twoTargets, &fakeActuator{current: level.MustNew(30)}, &stepClock{now: time.Now()})
	if err := ok.CheckDependencies(context.Background()); err != nil {
		t.Fatalf("CheckDependencies = %v", err)
	}

	bad := newTestApp(t, twoTargets, &fakeActuator{getErr: &actuator.ParseError{Output: "?"}}, &stepClock{now: time.Now()})
	if err := bad.CheckDependencies(context.Background()); !errors.Is(err, ErrDependency) {
		t.Fatalf("CheckDependencies = %v, want ErrDependency", err)
	}
}

func TestFallbackOnInvalidConfig(t *testing.T) {
	t.Parallel()
	a := newTestApp(t, "[[schedule]]\ntime = \"25:00\"\nvolume = 1\n", &fakeActuator{}, &stepClock{now: time.Now()})
	snap := a.Snapshot()
	if !snap.Fallback || snap.Schedule.Len() != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
}
