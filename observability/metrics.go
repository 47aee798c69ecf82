// Package observability implements scheduler.MetricsRecorder on top of
// github.com/prometheus/client_golang, exposing the dispatcher's queue
// depths, dispatch outcomes, wake latency, and priority migrations.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fluxsched/scheduler/priority"
)

// Recorder implements scheduler.MetricsRecorder. Construct one with New
// and pass it as Config.Metrics; the zero value is not usable.
type Recorder struct {
	queueDepth      *prometheus.GaugeVec
	dispatches      *prometheus.CounterVec
	hostWakeLatency prometheus.Histogram
	migrations      *prometheus.CounterVec
}

// New registers the scheduler's metric families against reg and returns
// a Recorder backed by them. Pass prometheus.DefaultRegisterer for the
// global registry, or a fresh *prometheus.Registry in tests to avoid
// collisions between repeated registrations.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Current number of tasks queued at a given priority",
		}, []string{"priority"}),

		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_dispatches_total",
			Help: "Total number of tasks the dispatcher has reached, by priority and outcome",
		}, []string{"priority", "outcome"}),

		hostWakeLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scheduler_host_wake_latency_seconds",
			Help:    "Time between scheduling a host wake-up and the dispatcher entry callback running",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us to ~1.6s
		}),

		migrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_priority_migrations_total",
			Help: "Total number of queued tasks moved between priority queues by a prioritychange event",
		}, []string{"from", "to"}),
	}
}

// SetQueueDepth implements scheduler.MetricsRecorder.
func (r *Recorder) SetQueueDepth(p priority.Priority, depth int) {
	r.queueDepth.WithLabelValues(p.String()).Set(float64(depth))
}

// RecordDispatch implements scheduler.MetricsRecorder.
func (r *Recorder) RecordDispatch(p priority.Priority, outcome string) {
	r.dispatches.WithLabelValues(p.String(), outcome).Inc()
}

// RecordHostWakeLatency implements scheduler.MetricsRecorder.
func (r *Recorder) RecordHostWakeLatency(seconds float64) {
	r.hostWakeLatency.Observe(seconds)
}

// RecordMigration implements scheduler.MetricsRecorder.
func (r *Recorder) RecordMigration(from, to priority.Priority) {
	r.migrations.WithLabelValues(from.String(), to.String()).Inc()
}
