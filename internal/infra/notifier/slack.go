package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"readtrack/internal/domain/entity"

	"github.com/google/uuid"
)

// SlackConfig configures the Slack Incoming Webhook channel.
type SlackConfig struct {
	Enabled    bool
	WebhookURL string
	// Timeout bounds each webhook HTTP call.
	Timeout time.Duration
}

// SlackNotifier delivers events to Slack via an Incoming Webhook using
// Block Kit formatting.
type SlackNotifier struct {
	config      SlackConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewSlackNotifier builds a notifier paced at 1 req/s with burst 1,
// matching Slack's webhook limit of one message per second.
func NewSlackNotifier(config SlackConfig) *SlackNotifier {
	return &SlackNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(1.0, 1),
	}
}

// SlackWebhookPayload is the webhook request body.
type SlackWebhookPayload struct {
	Text   string       `json:"text"` // fallback for notification previews
	Blocks []SlackBlock `json:"blocks"`
}

// SlackBlock is one Block Kit block ("section" or "context").
type SlackBlock struct {
	Type     string            `json:"type"`
	Text     *SlackTextObject  `json:"text,omitempty"`
	Elements []SlackTextObject `json:"elements,omitempty"`
}

// SlackTextObject is a Block Kit text object.
type SlackTextObject struct {
	Type string `json:"type"` // "mrkdwn" or "plain_text"
	Text string `json:"text"`
}

// SlackErrorResponse is the error body Slack returns on failure.
type SlackErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

const (
	maxSectionTextLength  = 3000
	maxFallbackLength     = 150
	slackTruncationSuffix = "..."
)

// buildBlockKitPayload renders event as a section block (linked title plus
// body, truncated to Block Kit's 3000-char limit) and a context block
// carrying the event kind and timestamp.
func (s *SlackNotifier) buildBlockKitPayload(event *entity.Event) SlackWebhookPayload {
	fallbackText := event.Title
	if len(fallbackText) > maxFallbackLength {
		fallbackText = fallbackText[:maxFallbackLength-len(slackTruncationSuffix)] + slackTruncationSuffix
	}

	titleText := fmt.Sprintf("*%s*", event.Title)
	if event.URL != "" {
		titleText = fmt.Sprintf("*<%s|%s>*", event.URL, event.Title)
	}
	sectionText := truncateBody(
		fmt.Sprintf("%s\n\n%s", titleText, event.Body),
		maxSectionTextLength, slackTruncationSuffix)

	return SlackWebhookPayload{
		Text: fallbackText,
		Blocks: []SlackBlock{
			{
				Type: "section",
				Text: &SlackTextObject{
					Type: "mrkdwn",
					Text: sectionText,
				},
			},
			{
				Type: "context",
				Elements: []SlackTextObject{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("%s • %s", event.Kind, event.OccurredAt.Format(time.RFC3339)),
					},
				},
			},
		},
	}
}

// sendWebhookRequest posts event to the webhook once and classifies the
// response.
func (s *SlackNotifier) sendWebhookRequest(ctx context.Context, event *entity.Event) error {
	return postJSON(ctx, s.httpClient, s.config.WebhookURL, s.buildBlockKitPayload(event), "Slack")
}

// NotifyEvent rate-limits, then delivers event with retries. It implements
// the Notifier interface.
func (s *SlackNotifier) NotifyEvent(ctx context.Context, event *entity.Event) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("Starting Slack notification",
		slog.String("request_id", requestID),
		slog.String("kind", event.Kind),
		slog.Int64("user_id", event.UserID))

	if err := s.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.String("kind", event.Kind),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return deliverWithRetry(ctx, "Slack", event, func(ctx context.Context) error {
		return s.sendWebhookRequest(ctx, event)
	})
}
