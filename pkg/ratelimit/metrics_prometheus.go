package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetrics records rate limiting events to Prometheus collectors.
type PrometheusMetrics struct {
	allowed       *prometheus.CounterVec
	denied        *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	storeFailures *prometheus.CounterVec
}

// NewPrometheusMetrics creates the rate limit collectors.
// Call MustRegister to attach them to a registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_allowed_total",
			Help: "Number of requests admitted by the rate limiter.",
		}, []string{"limiter", "action"}),
		denied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_denied_total",
			Help: "Number of requests rejected by the rate limiter.",
		}, []string{"limiter", "action"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_check_duration_seconds",
			Help:    "Duration of rate limit checks.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"limiter"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_store_failures_total",
			Help: "Counter store errors observed by the rate limiter (fail-open).",
		}, []string{"limiter"}),
	}
}

// MustRegister registers all collectors with the given registerer.
// Panics on duplicate registration.
func (m *PrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.allowed, m.denied, m.checkDuration, m.storeFailures)
}

// RecordAllowed increments the allowed counter.
func (m *PrometheusMetrics) RecordAllowed(limiterType, action string) {
	m.allowed.WithLabelValues(limiterType, action).Inc()
}

// RecordDenied increments the denied counter.
func (m *PrometheusMetrics) RecordDenied(limiterType, action string) {
	m.denied.WithLabelValues(limiterType, action).Inc()
}

// RecordCheckDuration observes one check duration.
func (m *PrometheusMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {
	m.checkDuration.WithLabelValues(limiterType).Observe(duration.Seconds())
}

// RecordStoreFailure increments the store failure counter.
func (m *PrometheusMetrics) RecordStoreFailure(limiterType string) {
	m.storeFailures.WithLabelValues(limiterType).Inc()
}
