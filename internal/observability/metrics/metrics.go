// Package metrics holds the Prometheus collectors of one process.
//
// Collectors live on a private registry so tests (and several instances in
// one binary) never collide on the global default registry.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"searchwatch/internal/eventbus"
)

const namespace = "searchwatch"

type Metrics struct {
	reg *prometheus.Registry

	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	chunks        *prometheus.CounterVec
	chunkDuration prometheus.Histogram
	total         prometheus.Gauge
	lastCycle     prometheus.Gauge
	notifications *prometheus.CounterVec
	tasks         *prometheus.CounterVec
	configReloads prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		// outcome: ok, partial, failed, skipped
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Search cycles by outcome.",
		}, []string{"outcome"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Wall time of one search cycle.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "chunks_total",
			Help:      "Chunk fetches by result (ok, error).",
		}, []string{"result"}),
		chunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "chunk_duration_seconds",
			Help:      "Latency of one chunk request.",
			Buckets:   prometheus.DefBuckets,
		}),
		total: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_results",
			Help:      "Last known total result count.",
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cycle",
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the last cycle finished.",
		}),
		// result: queued, deduped, dropped, sent, failed
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifier",
			Name:      "notifications_total",
			Help:      "Notification pipeline events by result.",
		}, []string{"result"}),
		tasks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "task",
			Name:      "events_total",
			Help:      "Task engine events by type (finished, failed, skipped, dropped).",
		}, []string{"event"}),
		configReloads: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "reloads_total",
			Help:      "Applied configuration reloads.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	m.cycles.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		m.cycleDuration.Observe(d.Seconds())
	}
	m.lastCycle.SetToCurrentTime()
}

func (m *Metrics) ObserveChunk(ok bool, d time.Duration) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.chunks.WithLabelValues(result).Inc()
	if d > 0 {
		m.chunkDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetTotal(v int64) { m.total.Set(float64(v)) }

var busLabels = map[string][2]string{
	eventbus.NotifierQueued:  {"notify", "queued"},
	eventbus.NotifierDeduped: {"notify", "deduped"},
	eventbus.NotifierDropped: {"notify", "dropped"},
	eventbus.NotifierSent:    {"notify", "sent"},
	eventbus.NotifierFailed:  {"notify", "failed"},
	eventbus.TaskFinished:    {"task", "finished"},
	eventbus.TaskFailed:      {"task", "failed"},
	eventbus.TaskSkipped:     {"task", "skipped"},
	eventbus.TaskDropped:     {"task", "dropped"},
}

// Observe counts one bus event. Unknown types are ignored.
func (m *Metrics) Observe(ev eventbus.Event) {
	if ev.Type == eventbus.ConfigReloaded {
		m.configReloads.Inc()
		return
	}
	l, ok := busLabels[ev.Type]
	if !ok {
		return
	}
	if l[0] == "notify" {
		m.notifications.WithLabelValues(l[1]).Inc()
		return
	}
	m.tasks.WithLabelValues(l[1]).Inc()
}

// Consume counts notifier, task and config events from the bus until ctx is done.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(ev)
		}
	}
}
