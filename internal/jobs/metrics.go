// Package jobmetrics exposes Prometheus collectors for background jobs.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels of a job run.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_total",
			Help: "Job runs by task type and outcome (success, retry, skipped).",
		}, []string{"task", "outcome"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_jobs_in_flight",
			Help: "Job runs currently executing by task type.",
		}, []string{"task"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Job run duration by task type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"task"}),
	}
	registerer.MustRegister(m.runs, m.inFlight, m.duration)
	return m
}

// Tracker records one job run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts recording a run of task. A nil Metrics yields a no-op tracker.
func (m *Metrics) Track(task string) *Tracker {
	if m != nil {
		m.inFlight.WithLabelValues(task).Inc()
	}
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records the outcome of err and returns it untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	t.metrics.inFlight.WithLabelValues(t.task).Dec()
	t.metrics.runs.WithLabelValues(t.task, Outcome(err)).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// Outcome classifies a handler result the way asynq will treat it.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeRetry
	}
}
