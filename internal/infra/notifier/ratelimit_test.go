package notifier

import (
	"context"
	"errors"
	"testing"
	"time"
)

// webhookWaitErr matches the errors rate.Limiter.Wait returns when the
// deadline cannot be met: a context error or its "would exceed" variant.
func webhookWaitErr(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return err != nil && err.Error() == "rate: Wait(n=1) would exceed context deadline"
}

func TestNewRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(2.0, 5)

	if limiter == nil || limiter.limiter == nil {
		t.Fatal("expected initialized limiter")
	}
	if limiter.burst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.burst)
	}
	if float64(limiter.rate) != 2.0 {
		t.Errorf("expected rate 2.0, got %f", float64(limiter.rate))
	}
}

func TestRateLimiter_TokenAvailable(t *testing.T) {
	limiter := NewRateLimiter(10.0, 5)

	if err := limiter.Allow(context.Background()); err != nil {
		t.Errorf("expected immediate token, got %v", err)
	}
}

func TestRateLimiter_BurstThenBlocked(t *testing.T) {
	// An unlock sweep from the retry worker may emit several alerts at
	// once; the burst is served immediately, the next send must wait.
	limiter := NewRateLimiter(2.0, 5)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx); err != nil {
			t.Fatalf("burst send %d should pass: %v", i+1, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst took %v, expected near-immediate", elapsed)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err := limiter.Allow(shortCtx)
	if err == nil {
		t.Fatal("send past the burst should have been limited")
	}
	if !webhookWaitErr(err) {
		t.Errorf("expected deadline-related error, got %v", err)
	}
}

func TestRateLimiter_DeadlineWhileWaiting(t *testing.T) {
	limiter := NewRateLimiter(1.0, 1)
	ctx := context.Background()

	if err := limiter.Allow(ctx); err != nil {
		t.Fatalf("first send should pass: %v", err)
	}

	shortCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := limiter.Allow(shortCtx)
	if err == nil {
		t.Fatal("expected the second send to hit the deadline")
	}
	if !webhookWaitErr(err) {
		t.Errorf("expected deadline-related error, got %v", err)
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Logf("warning: blocked only %v before failing (timing may vary)", elapsed)
	}
}

func TestRateLimiter_CancelWhileWaiting(t *testing.T) {
	// Service shutdown cancels in-flight sends that are parked on the
	// limiter; Allow must return promptly instead of holding the drain.
	limiter := NewRateLimiter(1.0, 1)

	if err := limiter.Allow(context.Background()); err != nil {
		t.Fatalf("first send should pass: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- limiter.Allow(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Allow did not return after cancel")
	}
}
