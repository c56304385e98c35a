package notify

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// delta runs record and returns how much the counter moved.
func delta(c prometheus.Counter, record func()) float64 {
	before := testutil.ToFloat64(c)
	record()
	return testutil.ToFloat64(c) - before
}

func TestCounters_IncrementPerChannel(t *testing.T) {
	tests := []struct {
		name    string
		counter prometheus.Counter
		record  func()
	}{
		{
			name:    "dispatch discord",
			counter: notificationDispatchedTotal.WithLabelValues("discord"),
			record:  func() { RecordDispatch("discord") },
		},
		{
			name:    "dispatch slack",
			counter: notificationDispatchedTotal.WithLabelValues("slack"),
			record:  func() { RecordDispatch("slack") },
		},
		{
			name:    "unlock alert sent",
			counter: notificationSentTotal.WithLabelValues("discord", "success"),
			record:  func() { RecordSuccess("discord", 120*time.Millisecond) },
		},
		{
			name:    "abuse alert send failed",
			counter: notificationSentTotal.WithLabelValues("slack", "failure"),
			record:  func() { RecordFailure("slack", 2*time.Second) },
		},
		{
			name:    "dropped on full pool",
			counter: notificationDroppedTotal.WithLabelValues("discord", "pool_full"),
			record:  func() { RecordDropped("discord", "pool_full") },
		},
		{
			name:    "dropped on open breaker",
			counter: notificationDroppedTotal.WithLabelValues("slack", "circuit_open"),
			record:  func() { RecordDropped("slack", "circuit_open") },
		},
		{
			name:    "dropped when disabled",
			counter: notificationDroppedTotal.WithLabelValues("discord", "disabled"),
			record:  func() { RecordDropped("discord", "disabled") },
		},
		{
			name:    "breaker opened",
			counter: circuitBreakerOpenTotal.WithLabelValues("slack"),
			record:  func() { RecordCircuitBreakerOpen("slack") },
		},
		{
			name:    "rate limit hit",
			counter: notificationRateLimitHits.WithLabelValues("discord"),
			record:  func() { RecordRateLimitHit("discord") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := delta(tt.counter, tt.record); got != 1 {
				t.Errorf("counter moved by %v, want 1", got)
			}
		})
	}
}

func TestSentCounter_KeepsStatusesSeparate(t *testing.T) {
	successBefore := testutil.ToFloat64(notificationSentTotal.WithLabelValues("status-sep", "success"))
	failureBefore := testutil.ToFloat64(notificationSentTotal.WithLabelValues("status-sep", "failure"))

	RecordSuccess("status-sep", 50*time.Millisecond)
	RecordSuccess("status-sep", 80*time.Millisecond)
	RecordFailure("status-sep", 5*time.Second)

	if got := testutil.ToFloat64(notificationSentTotal.WithLabelValues("status-sep", "success")) - successBefore; got != 2 {
		t.Errorf("success delta = %v, want 2", got)
	}
	if got := testutil.ToFloat64(notificationSentTotal.WithLabelValues("status-sep", "failure")) - failureBefore; got != 1 {
		t.Errorf("failure delta = %v, want 1", got)
	}
}

func TestRecordRateLimitWait_ObservesWithoutPanic(t *testing.T) {
	// Histogram samples are not inspectable via ToFloat64; this guards
	// against label-cardinality mistakes that panic at observe time.
	for _, wait := range []time.Duration{50 * time.Millisecond, time.Second, 45 * time.Second} {
		RecordRateLimitWait("wait-test", wait)
	}
}

func TestActiveGoroutinesGauge(t *testing.T) {
	SetActiveGoroutines(3)
	if got := testutil.ToFloat64(activeNotifications); got != 3 {
		t.Fatalf("gauge = %v after Set(3)", got)
	}

	IncrementActiveGoroutines()
	if got := testutil.ToFloat64(activeNotifications); got != 4 {
		t.Errorf("gauge = %v after Inc, want 4", got)
	}

	DecrementActiveGoroutines()
	DecrementActiveGoroutines()
	if got := testutil.ToFloat64(activeNotifications); got != 2 {
		t.Errorf("gauge = %v after two Dec, want 2", got)
	}
}

func TestSetChannelsEnabled(t *testing.T) {
	// Both alert channels enabled is the common production shape.
	SetChannelsEnabled(2)
	if got := testutil.ToFloat64(channelsEnabled); got != 2 {
		t.Errorf("gauge = %v, want 2", got)
	}

	SetChannelsEnabled(0)
	if got := testutil.ToFloat64(channelsEnabled); got != 0 {
		t.Errorf("gauge = %v, want 0", got)
	}
}

func TestMetrics_ConcurrentRecording(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 100

	before := testutil.ToFloat64(notificationDispatchedTotal.WithLabelValues("concurrent"))

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				RecordDispatch("concurrent")
				RecordSuccess("concurrent", 100*time.Millisecond)
				RecordRateLimitHit("concurrent")
				RecordDropped("concurrent", "pool_full")
			}
		}()
	}
	wg.Wait()

	after := testutil.ToFloat64(notificationDispatchedTotal.WithLabelValues("concurrent"))
	if got := after - before; got != goroutines*perGoroutine {
		t.Errorf("concurrent dispatch delta = %v, want %v", got, goroutines*perGoroutine)
	}
}
