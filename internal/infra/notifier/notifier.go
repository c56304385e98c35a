// Package notifier provides abstraction for delivering events to external
// webhook services. It defines the Notifier interface which allows different
// delivery mechanisms (Discord, Slack, etc.) to be used interchangeably
// through dependency injection.
//
// The package includes implementations for Discord and Slack webhooks and a
// no-op notifier for when notifications are disabled.
package notifier

import (
	"context"

	"readtrack/internal/domain/entity"
)

// Notifier is an interface for delivering events to an external service.
// Implementations should handle rate limiting, retries, and error logging
// internally.
type Notifier interface {
	// NotifyEvent delivers an event to the external service.
	//
	// Implementations should:
	//   - Generate a unique request ID for tracing
	//   - Apply rate limiting to prevent API abuse
	//   - Retry transient failures with exponential backoff
	//   - Log all attempts with the request ID for debugging
	//   - Respect context cancellation
	NotifyEvent(ctx context.Context, event *entity.Event) error
}
