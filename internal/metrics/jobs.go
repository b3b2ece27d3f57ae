package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bottle/internal/jobs"
)

// JobMetrics counts registry runs. It is a jobs.Observer.
type JobMetrics struct {
	registry *prometheus.Registry
	started  *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ jobs.Observer = (*JobMetrics)(nil)

// NewJobMetrics registers the job collectors, plus the Go and process
// collectors, on a fresh registry.
func NewJobMetrics() *JobMetrics {
	m := &JobMetrics{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bottle_jobs_started_total",
			Help: "Jobs started, by kind.",
		}, []string{"kind"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bottle_jobs_finished_total",
			Help: "Jobs finished, by kind and terminal state.",
		}, []string{"kind", "state"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bottle_job_duration_seconds",
			Help:    "Wall time of finished jobs.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.started, m.finished, m.duration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *JobMetrics) JobStarted(_ context.Context, kind, _ string) func(jobs.State, time.Duration) {
	m.started.WithLabelValues(kind).Inc()
	return func(final jobs.State, elapsed time.Duration) {
		m.finished.WithLabelValues(kind, string(final.Phase)).Inc()
		m.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *JobMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *JobMetrics) Registry() *prometheus.Registry {
	return m.registry
}
