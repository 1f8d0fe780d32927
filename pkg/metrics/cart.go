package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CartMetrics records cart engine activity.
type CartMetrics struct {
	mutations       *prometheus.CounterVec
	warnings        *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	persistDuration *prometheus.HistogramVec
	sessions        prometheus.Gauge
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil registerer
// yields a recorder whose methods are no-ops.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations that changed state, by operation.",
	}, []string{"op"})
	warnings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_line_warnings_total",
		Help: "Quantity adjustments surfaced to callers, by warning type.",
	}, []string{"type"})
	persistFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_persist_failures_total",
		Help: "Failed cart snapshot reads or writes, by backend and phase.",
	}, []string{"backend", "phase"})
	persistDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_persist_duration_seconds",
		Help:    "Duration of cart snapshot writes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cart_resident_sessions",
		Help: "Cart stores currently held in memory.",
	})
	reg.MustRegister(mutations, warnings, persistFailures, persistDuration, sessions)
	return &CartMetrics{
		mutations:       mutations,
		warnings:        warnings,
		persistFailures: persistFailures,
		persistDuration: persistDuration,
		sessions:        sessions,
	}
}

func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func (c *CartMetrics) IncWarning(kind string) {
	if c == nil || c.warnings == nil {
		return
	}
	c.warnings.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncPersistFailure counts a failed snapshot operation; phase is "load" or "save".
func (c *CartMetrics) IncPersistFailure(backend, phase string) {
	if c == nil || c.persistFailures == nil {
		return
	}
	c.persistFailures.WithLabelValues(normalizeLabel(backend), normalizeLabel(phase)).Inc()
}

func (c *CartMetrics) ObservePersist(backend string, duration time.Duration) {
	if c == nil || c.persistDuration == nil {
		return
	}
	c.persistDuration.WithLabelValues(normalizeLabel(backend)).Observe(duration.Seconds())
}

func (c *CartMetrics) SetSessions(n int) {
	if c == nil || c.sessions == nil {
		return
	}
	c.sessions.Set(float64(n))
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
