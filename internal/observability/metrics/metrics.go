// Package metrics exposes scheduler activity as Prometheus collectors, fed
// from the event bus so the ramp loop never touches them directly.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volramp/internal/eventbus"
)

type Metrics struct {
	reg *prometheus.Registry

	pushes        prometheus.Counter
	invocations   *prometheus.CounterVec
	level         prometheus.Gauge
	nextDeadline  prometheus.Gauge
	targets       prometheus.Gauge
	busDropped    prometheus.CounterFunc
	configReloads *prometheus.CounterVec
}

// New registers collectors on a private registry together with the Go and
// process collectors.
func New(bus eventbus.Bus) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		pushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volramp_pushes_total",
			Help: "Total level changes pushed to the actuator.",
		}),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volramp_invocations_total",
			Help: "Invocations that reached a terminal state, by outcome.",
		}, []string{"outcome"}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volramp_level_percent",
			Help: "Last level successfully pushed to the actuator.",
		}),
		nextDeadline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volramp_next_deadline_seconds",
			Help: "Unix time of the next scheduled deadline.",
		}),
		targets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "volramp_schedule_targets",
			Help: "Number of targets in the active schedule.",
		}),
		configReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volramp_schedule_reloads_total",
			Help: "Schedules installed at startup or by reload, by source.",
		}, []string{"source"}),
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	m.busDropped = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "volramp_eventbus_dropped_total",
		Help: "Events dropped because a subscriber was slow.",
	}, func() float64 { return float64(bus.Dropped()) })

	m.reg.MustRegister(
		m.pushes,
		m.invocations,
		m.level,
		m.nextDeadline,
		m.targets,
		m.busDropped,
		m.configReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, o := range []string{"settled", "failed"} {
		m.invocations.WithLabelValues(o)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe applies one event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.LevelPushed:
		if p, ok := e.Data.(eventbus.Push); ok {
			m.pushes.Inc()
			m.level.Set(float64(p.Level))
		}
	case eventbus.InvocationScheduled:
		if inv, ok := e.Data.(eventbus.Invocation); ok {
			m.nextDeadline.Set(float64(inv.Deadline.Unix()))
		}
	case eventbus.InvocationSettled:
		m.invocations.WithLabelValues("settled").Inc()
	case eventbus.InvocationFailed:
		m.invocations.WithLabelValues("failed").Inc()
	case eventbus.ScheduleReloaded:
		if r, ok := e.Data.(eventbus.Reload); ok {
			m.targets.Set(float64(r.Targets))
			src := "file"
			if r.Fallback {
				src = "default"
			}
			m.configReloads.WithLabelValues(src).Inc()
		}
	}
}

// Consume applies events from ch until ctx ends or ch closes.
func (m *Metrics) Consume(ctx context.Context, ch <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(e)
		}
	}
}
