package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"readtrack/internal/domain/entity"
	"readtrack/internal/infra/notifier"
)

func unlockEvent() *entity.Event {
	return &entity.Event{
		Kind:       entity.EventAchievementUnlocked,
		Title:      "Achievement unlocked: First Chapter",
		Body:       "You read your first chapter.",
		UserID:     7,
		OccurredAt: time.Now(),
	}
}

func TestDiscordChannel_Name(t *testing.T) {
	c := NewDiscordChannel(notifier.DiscordConfig{Enabled: false})
	if c.Name() != "discord" {
		t.Errorf("expected name 'discord', got %q", c.Name())
	}
}

func TestDiscordChannel_IsEnabled(t *testing.T) {
	enabled := NewDiscordChannel(notifier.DiscordConfig{Enabled: true, WebhookURL: "https://discord.example/webhook", Timeout: time.Second})
	if !enabled.IsEnabled() {
		t.Error("expected enabled channel")
	}

	disabled := NewDiscordChannel(notifier.DiscordConfig{Enabled: false})
	if disabled.IsEnabled() {
		t.Error("expected disabled channel")
	}
}

func TestDiscordChannel_Send_Disabled(t *testing.T) {
	c := NewDiscordChannel(notifier.DiscordConfig{Enabled: false})

	err := c.Send(context.Background(), unlockEvent())
	if !errors.Is(err, ErrChannelDisabled) {
		t.Errorf("expected ErrChannelDisabled, got %v", err)
	}
}

func TestDiscordChannel_Send_InvalidEvent(t *testing.T) {
	c := NewDiscordChannel(notifier.DiscordConfig{Enabled: true, WebhookURL: "https://discord.example/webhook", Timeout: time.Second})

	tests := map[string]*entity.Event{
		"nil event":     nil,
		"missing kind":  {Title: "t"},
		"missing title": {Kind: entity.EventOpsAlert},
	}

	for name, event := range tests {
		t.Run(name, func(t *testing.T) {
			if err := c.Send(context.Background(), event); !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}

func TestDiscordChannel_Send_DeliversToWebhook(t *testing.T) {
	var called bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewDiscordChannel(notifier.DiscordConfig{Enabled: true, WebhookURL: server.URL, Timeout: 5 * time.Second})

	if err := c.Send(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("webhook was not called")
	}
}

func TestDiscordChannel_ImplementsChannel(t *testing.T) {
	var _ Channel = NewDiscordChannel(notifier.DiscordConfig{})
}
