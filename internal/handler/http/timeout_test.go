package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func commitStub(delay time.Duration, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-r.Context().Done():
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(body))
	})
}

func TestTimeout_FastCommitPassesThrough(t *testing.T) {
	wrapped := Timeout(time.Second)(commitStub(0, `{"reward":1}`))

	req := httptest.NewRequest(http.MethodPost, "/progress/commit", strings.NewReader(`{"unit":3}`))
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"reward":1}` {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestTimeout_SlowCommitGets504(t *testing.T) {
	// Simulates a commit stuck behind a contended entry lock.
	wrapped := Timeout(50 * time.Millisecond)(commitStub(500*time.Millisecond, "late"))

	req := httptest.NewRequest(http.MethodPost, "/progress/commit", nil)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request timeout") {
		t.Errorf("expected timeout error body, got %s", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}
}

func TestTimeout_CancelsHandlerContext(t *testing.T) {
	// The commit path rolls back its transaction on context cancel, so the
	// middleware must actually cancel the request context, not just reply.
	canceled := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			close(canceled)
		case <-time.After(500 * time.Millisecond):
			t.Error("handler context was never canceled")
		}
	})

	wrapped := Timeout(30 * time.Millisecond)(handler)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/progress/commit", nil))

	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for context cancellation")
	}
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", rec.Code)
	}
}

func TestTimeout_DeadlinePropagatesToHandler(t *testing.T) {
	var sawDeadline atomic.Bool
	start := time.Now()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("expected request context to carry a deadline")
			return
		}
		want := start.Add(time.Second)
		if deadline.Before(want.Add(-100*time.Millisecond)) || deadline.After(want.Add(100*time.Millisecond)) {
			t.Errorf("deadline %v not near %v", deadline, want)
		}
		sawDeadline.Store(true)
		w.WriteHeader(http.StatusOK)
	})

	wrapped := Timeout(time.Second)(handler)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !sawDeadline.Load() {
		t.Error("handler never observed the deadline")
	}
}

func TestTimeout_PreservesExistingContextValues(t *testing.T) {
	type ctxKey string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v, _ := r.Context().Value(ctxKey("user_id")).(int64); v != 42 {
			t.Errorf("context value lost, got %v", r.Context().Value(ctxKey("user_id")))
		}
		w.WriteHeader(http.StatusOK)
	})

	wrapped := Timeout(time.Second)(handler)
	ctx := context.WithValue(context.Background(), ctxKey("user_id"), int64(42))
	req := httptest.NewRequest(http.MethodPost, "/progress/commit", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestTimeout_ZeroDurationExpiresImmediately(t *testing.T) {
	wrapped := Timeout(0)(commitStub(10*time.Millisecond, "ok"))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504 with zero timeout, got %d", rec.Code)
	}
}

func TestTimeout_LateWriteIsDiscarded(t *testing.T) {
	// After the 504 is on the wire, a handler that wakes up and writes
	// anyway must not corrupt the response.
	wrote := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(20 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("stale commit result"))
		close(wrote)
	})

	wrapped := Timeout(30 * time.Millisecond)(handler)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/progress/commit", nil))

	select {
	case <-wrote:
	case <-time.After(time.Second):
		t.Fatal("handler never attempted its late write")
	}

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("expected status 504, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "stale commit result") {
		t.Errorf("late write leaked into response: %s", rec.Body.String())
	}
}

func TestTimeout_ImplicitWriteHeaderAndChunkedBody(t *testing.T) {
	// Write without an explicit WriteHeader must still produce a 200, and
	// sequential writes must all land.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reward":1,`))
		_, _ = w.Write([]byte(`"backfilled":3}`))
	})

	wrapped := Timeout(time.Second)(handler)
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/progress/commit", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"reward":1,"backfilled":3}` {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
