package notify

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"readtrack/internal/domain/entity"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const (
	// breakerThreshold consecutive failures disable a channel for breakerTimeout.
	breakerThreshold = 5
	breakerTimeout   = 5 * time.Minute

	slotAcquireTimeout = 5 * time.Second
	deliveryTimeout    = 30 * time.Second
)

// Service fans events out to the enabled notification channels without
// blocking the caller. An achievement unlock or abuse alert is handed off
// here and delivered in the background.
type Service interface {
	// Publish dispatches event to every enabled channel. It returns
	// immediately; delivery failures are logged and counted, never
	// surfaced to the caller.
	Publish(ctx context.Context, event *entity.Event) error

	// GetChannelHealth reports per-channel breaker state for the
	// readiness endpoint.
	GetChannelHealth() []ChannelHealthStatus

	// Shutdown blocks until in-flight deliveries finish or ctx expires.
	Shutdown(ctx context.Context) error
}

// ChannelHealthStatus is one channel's view in GetChannelHealth.
type ChannelHealthStatus struct {
	Name               string
	Enabled            bool
	CircuitBreakerOpen bool
	DisabledUntil      *time.Time // nil while the breaker is closed
}

type service struct {
	channels []Channel
	// slots caps concurrent deliveries across all channels.
	slots chan struct{}

	breakerMu sync.RWMutex
	breakers  map[string]*breakerState

	inFlight   sync.WaitGroup
	sendCtx    context.Context
	sendCancel context.CancelFunc
}

// breakerState counts consecutive failures for one channel.
type breakerState struct {
	mu            sync.Mutex
	failures      int
	disabledUntil time.Time
}

// NewService wires channels behind a shared worker pool of maxConcurrent
// slots.
func NewService(channels []Channel, maxConcurrent int) Service {
	sendCtx, sendCancel := context.WithCancel(context.Background())

	svc := &service{
		channels:   channels,
		slots:      make(chan struct{}, maxConcurrent),
		breakers:   make(map[string]*breakerState, len(channels)),
		sendCtx:    sendCtx,
		sendCancel: sendCancel,
	}
	for _, ch := range channels {
		svc.breakers[ch.Name()] = &breakerState{}
	}
	return svc
}

func (s *service) Publish(ctx context.Context, event *entity.Event) error {
	if err := event.Validate(); err != nil {
		slog.Warn("Invalid notification event", slog.Any("error", err))
		return nil
	}

	requestID, _ := ctx.Value(requestIDKey).(string)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	enabled := make([]Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		if ch.IsEnabled() {
			enabled = append(enabled, ch)
		}
	}
	SetChannelsEnabled(float64(len(enabled)))

	if len(enabled) == 0 {
		slog.Debug("No notification channels enabled",
			slog.String("request_id", requestID),
			slog.String("kind", event.Kind))
		return nil
	}

	slog.Info("Dispatching event notification",
		slog.String("request_id", requestID),
		slog.String("kind", event.Kind),
		slog.Int64("user_id", event.UserID),
		slog.Int("enabled_channels", len(enabled)))

	for _, ch := range enabled {
		s.inFlight.Add(1)
		go s.deliver(requestID, ch, event)
	}
	return nil
}

// deliver runs in its own goroutine and pushes event through one channel,
// honoring the worker pool and the channel's breaker.
func (s *service) deliver(requestID string, channel Channel, event *entity.Event) {
	defer s.inFlight.Done()

	IncrementActiveGoroutines()
	defer DecrementActiveGoroutines()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in notification channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-time.After(slotAcquireTimeout):
		slog.Warn("Notification dropped: worker pool full",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()))
		RecordDropped(channel.Name(), "pool_full")
		return
	}

	br := s.breaker(channel.Name())
	br.mu.Lock()
	if time.Now().Before(br.disabledUntil) {
		until := br.disabledUntil
		br.mu.Unlock()
		slog.Warn("Channel temporarily disabled due to circuit breaker",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.Time("disabled_until", until))
		RecordDropped(channel.Name(), "circuit_open")
		return
	}
	br.mu.Unlock()

	// Derived from the shutdown context so Shutdown can cut deliveries
	// off after the grace period.
	ctx, cancel := context.WithTimeout(s.sendCtx, deliveryTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, requestIDKey, requestID)

	start := time.Now()
	RecordDispatch(channel.Name())
	err := channel.Send(ctx, event)
	duration := time.Since(start)

	br.mu.Lock()
	if err != nil {
		br.failures++
		if br.failures >= breakerThreshold {
			br.disabledUntil = time.Now().Add(breakerTimeout)
			slog.Error("Circuit breaker opened for channel",
				slog.String("request_id", requestID),
				slog.String("channel", channel.Name()),
				slog.Int("consecutive_failures", br.failures))
			RecordCircuitBreakerOpen(channel.Name())
		}
	} else {
		br.failures = 0
	}
	br.mu.Unlock()

	if err != nil {
		RecordFailure(channel.Name(), duration)
		slog.Warn("Channel notification failed",
			slog.String("request_id", requestID),
			slog.String("channel", channel.Name()),
			slog.String("kind", event.Kind),
			slog.Int64("user_id", event.UserID),
			slog.Duration("send_duration", duration),
			slog.Any("error", err))
		return
	}

	RecordSuccess(channel.Name(), duration)
	slog.Info("Channel notification sent",
		slog.String("request_id", requestID),
		slog.String("channel", channel.Name()),
		slog.String("kind", event.Kind),
		slog.String("title", event.Title),
		slog.Duration("send_duration", duration))
}

func (s *service) breaker(name string) *breakerState {
	s.breakerMu.RLock()
	defer s.breakerMu.RUnlock()
	return s.breakers[name]
}

func (s *service) GetChannelHealth() []ChannelHealthStatus {
	s.breakerMu.RLock()
	defer s.breakerMu.RUnlock()

	statuses := make([]ChannelHealthStatus, 0, len(s.channels))
	for _, ch := range s.channels {
		br := s.breakers[ch.Name()]

		br.mu.Lock()
		status := ChannelHealthStatus{
			Name:    ch.Name(),
			Enabled: ch.IsEnabled(),
		}
		if time.Now().Before(br.disabledUntil) {
			status.CircuitBreakerOpen = true
			until := br.disabledUntil
			status.DisabledUntil = &until
		}
		br.mu.Unlock()

		statuses = append(statuses, status)
	}
	return statuses
}

// Shutdown waits for in-flight deliveries before canceling the send
// context, so deliveries already in progress get to complete. On ctx
// expiry the remaining sends are cut off.
func (s *service) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down notification service")

	done := make(chan struct{})
	go func() {
		s.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.sendCancel()
		slog.Info("Notification service shutdown complete")
		return nil
	case <-ctx.Done():
		s.sendCancel()
		slog.Warn("Notification service shutdown timeout, canceling in-flight notifications")
		return ctx.Err()
	}
}
