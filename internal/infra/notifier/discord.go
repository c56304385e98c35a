package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"readtrack/internal/domain/entity"

	"github.com/google/uuid"
)

// DiscordConfig configures the Discord webhook channel.
type DiscordConfig struct {
	Enabled    bool
	WebhookURL string
	// Timeout bounds each webhook HTTP call.
	Timeout time.Duration
}

// DiscordNotifier delivers events to a Discord webhook as embeds.
type DiscordNotifier struct {
	config      DiscordConfig
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// NewDiscordNotifier builds a notifier paced at 0.5 req/s with burst 3,
// under Discord's webhook limit of 30 requests per minute.
func NewDiscordNotifier(config DiscordConfig) *DiscordNotifier {
	return &DiscordNotifier{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimiter: NewRateLimiter(0.5, 3),
	}
}

// DiscordWebhookPayload is the webhook request body.
type DiscordWebhookPayload struct {
	Embeds []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is one embed card in the webhook payload.
type DiscordEmbed struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	URL         string             `json:"url,omitempty"`
	Color       int                `json:"color"`
	Footer      DiscordEmbedFooter `json:"footer"`
	Timestamp   string             `json:"timestamp"`
}

// DiscordEmbedFooter labels the embed with the event kind.
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordErrorResponse is the error body Discord returns, including the
// retry_after hint on 429s.
type DiscordErrorResponse struct {
	Message    string  `json:"message"`
	Code       int     `json:"code"`
	RetryAfter float64 `json:"retry_after"` // seconds
}

const (
	maxTitleLength       = 256
	maxDescriptionLength = 4096
	truncationSuffix     = "..."

	discordBlueColor = 5793266  // #5865F2, achievement unlocks
	discordRedColor  = 15548997 // #ED4245, abuse and ops alerts
)

// embedColor maps an event kind to an embed color.
// Alerts are red, everything else Discord blue.
func embedColor(kind string) int {
	switch kind {
	case entity.EventAbuseAlert, entity.EventOpsAlert:
		return discordRedColor
	default:
		return discordBlueColor
	}
}

// buildEmbedPayload renders event as a single embed, truncating title and
// body to Discord's field limits.
func (d *DiscordNotifier) buildEmbedPayload(event *entity.Event) DiscordWebhookPayload {
	title := event.Title
	if len(title) > maxTitleLength {
		title = title[:maxTitleLength]
	}

	embed := DiscordEmbed{
		Title:       title,
		Description: truncateBody(event.Body, maxDescriptionLength, truncationSuffix),
		URL:         event.URL,
		Color:       embedColor(event.Kind),
		Footer: DiscordEmbedFooter{
			Text: event.Kind,
		},
		Timestamp: event.OccurredAt.Format(time.RFC3339),
	}

	return DiscordWebhookPayload{Embeds: []DiscordEmbed{embed}}
}

// sendWebhookRequest posts event to the webhook once and classifies the
// response.
func (d *DiscordNotifier) sendWebhookRequest(ctx context.Context, event *entity.Event) error {
	return postJSON(ctx, d.httpClient, d.config.WebhookURL, d.buildEmbedPayload(event), "Discord")
}

// extractRetryAfter reads the backoff hint from the 429 body, falling back
// to the Retry-After header, then to 5 seconds.
func extractRetryAfter(resp *http.Response, body []byte) time.Duration {
	var discordErr DiscordErrorResponse
	if err := json.Unmarshal(body, &discordErr); err == nil && discordErr.RetryAfter > 0 {
		return time.Duration(discordErr.RetryAfter * float64(time.Second))
	}

	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}

	return 5 * time.Second
}

// NotifyEvent rate-limits, then delivers event with retries. It implements
// the Notifier interface.
func (d *DiscordNotifier) NotifyEvent(ctx context.Context, event *entity.Event) error {
	requestID := uuid.New().String()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	slog.Info("Starting Discord notification",
		slog.String("request_id", requestID),
		slog.String("kind", event.Kind),
		slog.Int64("user_id", event.UserID))

	if err := d.rateLimiter.Allow(ctx); err != nil {
		slog.Error("Rate limiter error",
			slog.String("request_id", requestID),
			slog.String("kind", event.Kind),
			slog.Any("error", err))
		return fmt.Errorf("rate limiter error: %w", err)
	}

	return deliverWithRetry(ctx, "Discord", event, func(ctx context.Context) error {
		return d.sendWebhookRequest(ctx, event)
	})
}
