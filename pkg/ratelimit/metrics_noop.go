package ratelimit

import "time"

// NoOpMetrics is a Metrics implementation that discards all events.
//
// Useful for tests and for callers that do not need metrics.
type NoOpMetrics struct{}

// RecordAllowed does nothing.
func (m *NoOpMetrics) RecordAllowed(limiterType, action string) {}

// RecordDenied does nothing.
func (m *NoOpMetrics) RecordDenied(limiterType, action string) {}

// RecordCheckDuration does nothing.
func (m *NoOpMetrics) RecordCheckDuration(limiterType string, duration time.Duration) {}

// RecordStoreFailure does nothing.
func (m *NoOpMetrics) RecordStoreFailure(limiterType string) {}
