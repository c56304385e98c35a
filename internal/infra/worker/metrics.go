package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the retry worker: poll run
// tracking plus configuration fallback monitoring for LoadConfigFromEnv.
//
// Metrics:
//   - worker_retry_runs_total: Total poll runs by status (success/failure)
//   - worker_retry_run_duration_seconds: Duration histogram of poll runs
//   - worker_retry_tasks_processed_total: Total tasks processed by outcome
//   - worker_retry_last_success_timestamp: Unix timestamp of last successful run
//   - worker_config_load_timestamp: Unix timestamp of last config load
//   - worker_config_fallbacks_total: Config fallbacks applied by field
//   - worker_config_fallback_active: 1 when any field runs on its default
type WorkerMetrics struct {
	// RetryRunsTotal counts poll runs by status (success, failure).
	RetryRunsTotal *prometheus.CounterVec

	// RetryRunDurationSeconds measures the duration of poll runs.
	RetryRunDurationSeconds prometheus.Histogram

	// RetryTasksProcessedTotal counts processed tasks by outcome
	// (completed, rescheduled, exhausted).
	RetryTasksProcessedTotal *prometheus.CounterVec

	// RetryLastSuccessTimestamp records the Unix timestamp of the last
	// successful poll run.
	RetryLastSuccessTimestamp prometheus.Gauge

	// ConfigLoadTimestamp records when the worker config was loaded.
	ConfigLoadTimestamp prometheus.Gauge

	// ConfigFallbacksTotal counts env values rejected by validation and
	// replaced with their defaults, by config field.
	ConfigFallbacksTotal *prometheus.CounterVec

	// ConfigFallbackActive is 1 while any config field runs on its
	// default because the env value was invalid.
	ConfigFallbackActive prometheus.Gauge
}

// NewWorkerMetrics creates a WorkerMetrics instance with all metrics
// initialized and registered via promauto.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		RetryRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_retry_runs_total",
			Help: "Total number of retry poll runs by status (success/failure)",
		}, []string{"status"}),

		RetryRunDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_retry_run_duration_seconds",
			Help:    "Duration of retry poll runs in seconds",
			Buckets: []float64{.1, .5, 1, 5, 30, 60, 120},
		}),

		RetryTasksProcessedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_retry_tasks_processed_total",
			Help: "Total number of retry tasks processed by outcome",
		}, []string{"outcome"}),

		RetryLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_retry_last_success_timestamp",
			Help: "Unix timestamp of the last successful retry poll run",
		}),

		ConfigLoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_load_timestamp",
			Help: "Unix timestamp of the last worker configuration load",
		}),

		ConfigFallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_config_fallbacks_total",
			Help: "Total number of worker configuration fallbacks by field",
		}, []string{"field"}),

		ConfigFallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_fallback_active",
			Help: "1 if any worker configuration fallback is active, 0 otherwise",
		}),
	}
}

// MustRegister is a no-op kept for API symmetry: metrics are auto-registered
// via promauto when created in NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {}

// RecordRun increments the poll run counter for the given status
// ("success" or "failure").
func (m *WorkerMetrics) RecordRun(status string) {
	m.RetryRunsTotal.WithLabelValues(status).Inc()
}

// RecordRunDuration observes the duration of a poll run.
func (m *WorkerMetrics) RecordRunDuration(seconds float64) {
	m.RetryRunDurationSeconds.Observe(seconds)
}

// RecordTask counts a processed task by outcome
// ("completed", "rescheduled" or "exhausted").
func (m *WorkerMetrics) RecordTask(outcome string) {
	m.RetryTasksProcessedTotal.WithLabelValues(outcome).Inc()
}

// RecordLastSuccess sets the last-success gauge to the current time.
func (m *WorkerMetrics) RecordLastSuccess() {
	m.RetryLastSuccessTimestamp.SetToCurrentTime()
}

// RecordConfigLoad stamps the config load gauge and the fallback-active
// flag for this load.
func (m *WorkerMetrics) RecordConfigLoad(fallbackActive bool) {
	m.ConfigLoadTimestamp.SetToCurrentTime()
	if fallbackActive {
		m.ConfigFallbackActive.Set(1)
	} else {
		m.ConfigFallbackActive.Set(0)
	}
}

// RecordConfigFallback counts one rejected env value for a config field.
func (m *WorkerMetrics) RecordConfigFallback(field string) {
	m.ConfigFallbacksTotal.WithLabelValues(field).Inc()
}
