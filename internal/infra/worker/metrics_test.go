package worker

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWorkerMetrics(t *testing.T) {
	// Use the shared instance to avoid duplicate Prometheus registration
	metrics := globalTestMetrics

	if metrics == nil {
		t.Fatal("NewWorkerMetrics returned nil")
	}
	if metrics.RetryRunsTotal == nil {
		t.Error("RetryRunsTotal is nil")
	}
	if metrics.RetryRunDurationSeconds == nil {
		t.Error("RetryRunDurationSeconds is nil")
	}
	if metrics.RetryTasksProcessedTotal == nil {
		t.Error("RetryTasksProcessedTotal is nil")
	}
	if metrics.RetryLastSuccessTimestamp == nil {
		t.Error("RetryLastSuccessTimestamp is nil")
	}
	if metrics.ConfigLoadTimestamp == nil {
		t.Error("ConfigLoadTimestamp is nil")
	}
	if metrics.ConfigFallbacksTotal == nil {
		t.Error("ConfigFallbacksTotal is nil")
	}
	if metrics.ConfigFallbackActive == nil {
		t.Error("ConfigFallbackActive is nil")
	}

	// Should not panic (metrics are auto-registered via promauto)
	metrics.MustRegister()
}

func TestWorkerMetrics_RecordRun(t *testing.T) {
	// Custom registry for isolated counting
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_worker_retry_runs_total",
		Help: "Test counter",
	}, []string{"status"})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{RetryRunsTotal: counter}

	metrics.RecordRun("success")
	metrics.RecordRun("success")
	metrics.RecordRun("failure")

	if got := testutil.ToFloat64(counter.WithLabelValues("success")); got != 2 {
		t.Errorf("Expected 2 success runs, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("failure")); got != 1 {
		t.Errorf("Expected 1 failure run, got %v", got)
	}
}

func TestWorkerMetrics_RecordRunDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "test_worker_retry_run_duration_seconds",
		Help:    "Test histogram",
		Buckets: []float64{.1, .5, 1, 5, 30, 60, 120},
	})
	reg.MustRegister(hist)

	metrics := &WorkerMetrics{RetryRunDurationSeconds: hist}

	metrics.RecordRunDuration(0.25)
	metrics.RecordRunDuration(42)

	if got := testutil.CollectAndCount(hist); got != 1 {
		t.Errorf("Expected 1 histogram metric, got %d", got)
	}
}

func TestWorkerMetrics_RecordTask(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_worker_retry_tasks_processed_total",
		Help: "Test counter",
	}, []string{"outcome"})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{RetryTasksProcessedTotal: counter}

	metrics.RecordTask("completed")
	metrics.RecordTask("completed")
	metrics.RecordTask("rescheduled")
	metrics.RecordTask("exhausted")

	if got := testutil.ToFloat64(counter.WithLabelValues("completed")); got != 2 {
		t.Errorf("Expected 2 completed tasks, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("rescheduled")); got != 1 {
		t.Errorf("Expected 1 rescheduled task, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("exhausted")); got != 1 {
		t.Errorf("Expected 1 exhausted task, got %v", got)
	}
}

func TestWorkerMetrics_RecordConfigLoad(t *testing.T) {
	reg := prometheus.NewRegistry()
	loadGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_worker_config_load_timestamp",
		Help: "Test gauge",
	})
	activeGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_worker_config_fallback_active",
		Help: "Test gauge",
	})
	reg.MustRegister(loadGauge, activeGauge)

	metrics := &WorkerMetrics{
		ConfigLoadTimestamp:  loadGauge,
		ConfigFallbackActive: activeGauge,
	}

	metrics.RecordConfigLoad(true)
	if got := testutil.ToFloat64(activeGauge); got != 1 {
		t.Errorf("Expected fallback active 1, got %v", got)
	}
	if got := testutil.ToFloat64(loadGauge); got == 0 {
		t.Error("Config load timestamp not set")
	}

	metrics.RecordConfigLoad(false)
	if got := testutil.ToFloat64(activeGauge); got != 0 {
		t.Errorf("Expected fallback active 0 after clean load, got %v", got)
	}
}

func TestWorkerMetrics_RecordConfigFallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "test_worker_config_fallbacks_total",
		Help: "Test counter",
	}, []string{"field"})
	reg.MustRegister(counter)

	metrics := &WorkerMetrics{ConfigFallbacksTotal: counter}

	metrics.RecordConfigFallback("claim_batch")
	metrics.RecordConfigFallback("claim_batch")
	metrics.RecordConfigFallback("timezone")

	if got := testutil.ToFloat64(counter.WithLabelValues("claim_batch")); got != 2 {
		t.Errorf("Expected 2 claim_batch fallbacks, got %v", got)
	}
	if got := testutil.ToFloat64(counter.WithLabelValues("timezone")); got != 1 {
		t.Errorf("Expected 1 timezone fallback, got %v", got)
	}
}

func TestWorkerMetrics_RecordLastSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "test_worker_retry_last_success_timestamp",
		Help: "Test gauge",
	})
	reg.MustRegister(gauge)

	metrics := &WorkerMetrics{RetryLastSuccessTimestamp: gauge}

	before := time.Now().Unix()
	metrics.RecordLastSuccess()
	after := time.Now().Unix()

	got := int64(testutil.ToFloat64(gauge))
	if got < before || got > after {
		t.Errorf("Last success timestamp %d outside [%d, %d]", got, before, after)
	}
}
