package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Catalog load outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeTruncated = "truncated"
	OutcomeFailure   = "failure"
)

// CatalogMetrics instruments permission catalog loads.
type CatalogMetrics struct {
	loads       *prometheus.CounterVec
	pages       prometheus.Counter
	duration    prometheus.Histogram
	permissions prometheus.Gauge
}

// NewCatalogMetrics registers the catalog collectors against registerer.
func NewCatalogMetrics(registerer prometheus.Registerer) *CatalogMetrics {
	loads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_catalog_loads_total",
		Help: "Permission catalog loads partitioned by outcome.",
	}, []string{"outcome"})
	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "backoffice_catalog_pages_total",
		Help: "Permission list pages fetched from the backend.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "backoffice_catalog_load_duration_seconds",
		Help:    "Duration of a full permission catalog load.",
		Buckets: prometheus.DefBuckets,
	})
	permissions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_catalog_permissions",
		Help: "Permissions in the most recently published catalog snapshot.",
	})
	registerer.MustRegister(loads, pages, duration, permissions)
	return &CatalogMetrics{loads: loads, pages: pages, duration: duration, permissions: permissions}
}

// CatalogTracker measures one load.
type CatalogTracker struct {
	metrics *CatalogMetrics
	start   time.Time
}

// Track starts measuring a load.
func (m *CatalogMetrics) Track() *CatalogTracker {
	return &CatalogTracker{metrics: m, start: time.Now()}
}

// Page counts one fetched page.
func (t *CatalogTracker) Page() {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.pages.Inc()
}

// End records the outcome and, for published snapshots, their size.
func (t *CatalogTracker) End(outcome string, permissions int) {
	if t == nil || t.metrics == nil {
		return
	}
	t.metrics.loads.WithLabelValues(outcome).Inc()
	t.metrics.duration.Observe(time.Since(t.start).Seconds())
	if outcome != OutcomeFailure {
		t.metrics.permissions.Set(float64(permissions))
	}
}
