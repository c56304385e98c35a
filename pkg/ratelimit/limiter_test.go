package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a fixed, advanceable time.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mapStore is a minimal in-memory CounterStore driven by the fake clock.
type mapStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	counts  map[string]int64
	expires map[string]time.Time
	err     error
}

func newMapStore(clock *fakeClock) *mapStore {
	return &mapStore{
		clock:   clock,
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (s *mapStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, time.Time{}, s.err
	}
	now := s.clock.Now()
	if exp, ok := s.expires[key]; !ok || !exp.After(now) {
		s.counts[key] = 0
		s.expires[key] = now.Add(ttl)
	}
	s.counts[key]++
	return s.counts[key], s.expires[key], nil
}

func TestBudgetLimiter_ScenarioRequestBudget(t *testing.T) {
	// Five requests within 3 seconds against a budget of 3 per 5 seconds:
	// exactly 3 admitted, 2 rejected with retry guidance.
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewBudgetLimiter("user", newMapStore(clock), clock, nil)
	budget := Budget{Limit: 3, Window: 5 * time.Second}
	ctx := context.Background()

	allowed, denied := 0, 0
	for i := 0; i < 5; i++ {
		d, err := limiter.Allow(ctx, "user:42", "progress", budget)
		require.NoError(t, err)
		if d.Allowed {
			allowed++
		} else {
			denied++
			assert.Positive(t, d.RetryAfterSeconds(), "denied decisions carry retry guidance")
			assert.Equal(t, 0, d.Remaining)
		}
		clock.Advance(600 * time.Millisecond)
	}

	assert.Equal(t, 3, allowed)
	assert.Equal(t, 2, denied)
}

func TestBudgetLimiter_WindowResets(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewBudgetLimiter("user", newMapStore(clock), clock, nil)
	budget := Budget{Limit: 1, Window: 5 * time.Second}
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "u", "progress", budget)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "u", "progress", budget)
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	clock.Advance(6 * time.Second)

	d, err = limiter.Allow(ctx, "u", "progress", budget)
	require.NoError(t, err)
	assert.True(t, d.Allowed, "budget refills after the window expires")
}

func TestBudgetLimiter_IndependentSubjectsAndActions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewBudgetLimiter("user", newMapStore(clock), clock, nil)
	budget := Budget{Limit: 1, Window: time.Minute}
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "alice", "progress", budget)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Different subject, same action: separate budget.
	d, err = limiter.Allow(ctx, "bob", "progress", budget)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	// Same subject, different action: separate budget too. This is what
	// keeps the reward-grant budget independent of the request budget.
	d, err = limiter.Allow(ctx, "alice", "reward", budget)
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = limiter.Allow(ctx, "alice", "progress", budget)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestBudgetLimiter_FailsOpenOnStoreError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	store := newMapStore(clock)
	store.err = errors.New("store down")
	limiter := NewBudgetLimiter("user", store, clock, nil)
	ctx := context.Background()

	d, err := limiter.Allow(ctx, "u", "progress", Budget{Limit: 1, Window: time.Minute})
	require.NoError(t, err)
	assert.True(t, d.Allowed, "a broken store must not reject traffic")
}

func TestDecision_Headers(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newDecision("k", "user", 4, Budget{Limit: 3, Window: 5 * time.Second}, now.Add(2*time.Second), now)

	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining, "remaining never goes negative")
	assert.Equal(t, int64(2), d.RetryAfterSeconds())
	assert.Equal(t, now.Add(2*time.Second).Unix(), d.ResetAtUnix())
}
