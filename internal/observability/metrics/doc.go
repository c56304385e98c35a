// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes all application metrics including:
//   - HTTP request metrics (duration, count, size)
//   - Business metrics (progress commits, rewards, streaks)
//   - Database query metrics
//   - Application performance metrics
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "readtrack/internal/observability/metrics"
//
//	func commitProgress(outcome string) {
//	    start := time.Now()
//	    // ... commit progress ...
//
//	    metrics.RecordCommit(outcome, time.Since(start))
//	}
package metrics
