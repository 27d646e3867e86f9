// Package report logs a periodic summary of the upcoming invocations on a
// cron schedule, and renders the same summary for the check command.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"volramp/internal/schedule"
	"volramp/pkg/logx"
)

// parser accepts 5- and 6-field specs and descriptors like "@every 1h".
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate reports whether spec is a usable cron spec. Empty is valid (disabled).
func Validate(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("report schedule %q: %w", spec, err)
	}
	return nil
}

// Source returns the schedule currently in effect.
type Source func() *schedule.Schedule

type Reporter struct {
	src Source
	log logx.Logger
	now func() time.Time

	mu   sync.Mutex
	spec string
	c    *cron.Cron
}

func New(src Source, log logx.Logger) *Reporter {
	return &Reporter{src: src, log: log.With(logx.String("comp", "report")), now: time.Now}
}

// Apply (re)starts the cron runner for spec; empty stops it.
func (r *Reporter) Apply(spec string, loc *time.Location) error {
	spec = strings.TrimSpace(spec)
	if err := Validate(spec); err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		<-r.c.Stop().Done()
		r.c = nil
	}
	r.spec = spec
	if spec == "" {
		return nil
	}
	r.c = cron.New(cron.WithParser(parser), cron.WithLocation(loc))
	if _, err := r.c.AddFunc(spec, r.Emit); err != nil {
		r.c = nil
		return err
	}
	r.c.Start()
	r.log.Info("report scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

// Run keeps the runner alive until ctx ends, then stops it.
func (r *Reporter) Run(ctx context.Context) error {
	<-ctx.Done()
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	return nil
}

// Emit logs one status line.
func (r *Reporter) Emit() {
	sched := r.src()
	now := r.now()
	if sched == nil || sched.Len() == 0 {
		r.log.Info("status: schedule is empty")
		return
	}
	next := sched.Upcoming(now, 2)
	fields := []logx.Field{logx.Int("targets", sched.Len())}
	if len(next) > 0 {
		fields = append(fields,
			logx.Int("next_level", next[0].Level.Int()),
			logx.Time("next_at", next[0].Occurrence),
		)
	}
	r.log.Info("status: "+Summary(now, next), fields...)
}

// Summary renders upcoming invocations as one line, e.g.
// "17:00 → 70% 6 hours from now, then 08:00 → 30% 21 hours from now".
func Summary(now time.Time, invs []schedule.Invocation) string {
	if len(invs) == 0 {
		return "nothing scheduled"
	}
	parts := make([]string, len(invs))
	for i, inv := range invs {
		parts[i] = Describe(now, inv)
	}
	return strings.Join(parts, ", then ")
}

func Describe(now time.Time, inv schedule.Invocation) string {
	return fmt.Sprintf("%s → %s %s", inv.Time, inv.Level.Percent(), humanize.RelTime(inv.Occurrence, now, "ago", "from now"))
}
