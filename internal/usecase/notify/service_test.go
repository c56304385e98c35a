package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"readtrack/internal/domain/entity"
)

// mockChannel is a configurable Channel implementation for service tests.
type mockChannel struct {
	name    string
	enabled bool
	sendErr error
	delay   time.Duration

	mu       sync.Mutex
	received []*entity.Event
}

func (m *mockChannel) Name() string    { return m.name }
func (m *mockChannel) IsEnabled() bool { return m.enabled }

func (m *mockChannel) Send(ctx context.Context, event *entity.Event) error {
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	m.received = append(m.received, event)
	err := m.sendErr
	m.mu.Unlock()
	return err
}

func (m *mockChannel) receivedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.received)
}

// waitForSends polls until the channel has received want events or the
// timeout expires. Publish dispatches asynchronously, so tests must wait.
func waitForSends(t *testing.T, ch *mockChannel, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ch.receivedCount() >= want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("channel %q received %d events, want %d", ch.name, ch.receivedCount(), want)
}

func shutdown(t *testing.T, svc Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestService_Publish_DispatchesToEnabledChannels(t *testing.T) {
	discord := &mockChannel{name: "discord", enabled: true}
	slack := &mockChannel{name: "slack", enabled: true}

	svc := NewService([]Channel{discord, slack}, 10)
	defer shutdown(t, svc)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForSends(t, discord, 1)
	waitForSends(t, slack, 1)
}

func TestService_Publish_SkipsDisabledChannels(t *testing.T) {
	enabled := &mockChannel{name: "discord", enabled: true}
	disabled := &mockChannel{name: "slack", enabled: false}

	svc := NewService([]Channel{enabled, disabled}, 10)
	defer shutdown(t, svc)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForSends(t, enabled, 1)
	if disabled.receivedCount() != 0 {
		t.Errorf("disabled channel received %d events", disabled.receivedCount())
	}
}

func TestService_Publish_InvalidEventNotDispatched(t *testing.T) {
	ch := &mockChannel{name: "discord", enabled: true}

	svc := NewService([]Channel{ch}, 10)
	defer shutdown(t, svc)

	tests := map[string]*entity.Event{
		"nil event":     nil,
		"missing kind":  {Title: "t"},
		"missing title": {Kind: entity.EventOpsAlert},
	}

	for name, event := range tests {
		t.Run(name, func(t *testing.T) {
			// Publish swallows invalid input without dispatching
			if err := svc.Publish(context.Background(), event); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}

	time.Sleep(50 * time.Millisecond)
	if ch.receivedCount() != 0 {
		t.Errorf("expected no dispatches, got %d", ch.receivedCount())
	}
}

func TestService_Publish_ChannelFailureDoesNotPropagate(t *testing.T) {
	failing := &mockChannel{name: "discord", enabled: true, sendErr: errors.New("webhook down")}

	svc := NewService([]Channel{failing}, 10)
	defer shutdown(t, svc)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("expected nil error from Publish, got %v", err)
	}

	waitForSends(t, failing, 1)
}

func TestService_Publish_NoEnabledChannels(t *testing.T) {
	svc := NewService([]Channel{&mockChannel{name: "discord", enabled: false}}, 10)
	defer shutdown(t, svc)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_GetChannelHealth(t *testing.T) {
	discord := &mockChannel{name: "discord", enabled: true}
	slack := &mockChannel{name: "slack", enabled: false}

	svc := NewService([]Channel{discord, slack}, 10)
	defer shutdown(t, svc)

	statuses := svc.GetChannelHealth()
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}

	byName := map[string]ChannelHealthStatus{}
	for _, s := range statuses {
		byName[s.Name] = s
	}

	if !byName["discord"].Enabled {
		t.Error("expected discord enabled")
	}
	if byName["slack"].Enabled {
		t.Error("expected slack disabled")
	}
	for name, s := range byName {
		if s.CircuitBreakerOpen {
			t.Errorf("channel %q: circuit breaker open on fresh service", name)
		}
		if s.DisabledUntil != nil {
			t.Errorf("channel %q: unexpected disabled until", name)
		}
	}
}

func TestService_Shutdown_WaitsForInFlight(t *testing.T) {
	slow := &mockChannel{name: "discord", enabled: true, delay: 100 * time.Millisecond}

	svc := NewService([]Channel{slow}, 10)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if slow.receivedCount() != 1 {
		t.Errorf("expected in-flight notification to complete, got %d", slow.receivedCount())
	}
}

func TestService_Shutdown_TimeoutReturnsError(t *testing.T) {
	stuck := &mockChannel{name: "discord", enabled: true, delay: 10 * time.Second}

	svc := NewService([]Channel{stuck}, 10)

	if err := svc.Publish(context.Background(), unlockEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Give the goroutine time to enter Send before forcing the timeout
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := svc.Shutdown(ctx)
	// Shutdown cancels the send context, so either the wait finishes in
	// time (nil) or the shutdown context expires first
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("unexpected shutdown error: %v", err)
	}
}

func TestService_Publish_ConcurrentSafe(t *testing.T) {
	ch := &mockChannel{name: "discord", enabled: true}

	svc := NewService([]Channel{ch}, 10)
	defer shutdown(t, svc)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = svc.Publish(context.Background(), unlockEvent())
		}()
	}
	wg.Wait()

	waitForSends(t, ch, 20)
}
