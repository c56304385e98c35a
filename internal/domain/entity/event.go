package entity

import "time"

// Event kinds dispatched to notification channels.
const (
	// EventAchievementUnlocked announces an achievement unlock.
	EventAchievementUnlocked = "achievement_unlocked"

	// EventAbuseAlert flags suspicious reading activity for operators.
	EventAbuseAlert = "abuse_alert"

	// EventOpsAlert reports operational failures, such as an achievement
	// retry task that exhausted its attempts.
	EventOpsAlert = "ops_alert"
)

// Event is a notification dispatched to the configured channels.
// Title and Body carry the human-readable message; URL is an optional
// link to the related resource.
type Event struct {
	Kind       string
	Title      string
	Body       string
	URL        string
	UserID     int64
	OccurredAt time.Time
}

// Validate checks that the event carries the minimum required fields.
func (e *Event) Validate() error {
	if e == nil {
		return &ValidationError{Field: "event", Message: "event is required"}
	}
	if e.Kind == "" {
		return &ValidationError{Field: "kind", Message: "kind is required"}
	}
	if e.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	return nil
}
