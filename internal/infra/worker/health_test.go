package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func decodeHealth(t *testing.T, rec *httptest.ResponseRecorder) healthResponse {
	t.Helper()
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal health response: %v", err)
	}
	return resp
}

func TestNewHealthServer_StartsNotReady(t *testing.T) {
	server := NewHealthServer(":9091", testLogger())

	if server.addr != ":9091" {
		t.Errorf("expected addr ':9091', got %q", server.addr)
	}
	if server.isReady == nil {
		t.Fatal("expected isReady to be initialized")
	}
	// A worker that has not started its scheduler must not receive traffic.
	if server.isReady.Load() {
		t.Error("expected isReady false before SetReady")
	}
}

func TestHealthServer_LivenessAlwaysOK(t *testing.T) {
	server := NewHealthServer(":0", testLogger())

	// Liveness does not depend on readiness state.
	for _, ready := range []bool{false, true} {
		server.isReady.Store(ready)

		rec := httptest.NewRecorder()
		server.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("ready=%v: expected 200, got %d", ready, rec.Code)
		}
		if got := decodeHealth(t, rec); got.Status != "ok" {
			t.Errorf("ready=%v: expected status ok, got %q", ready, got.Status)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected application/json, got %q", ct)
		}
	}
}

func TestHealthServer_ReadinessFollowsSetReady(t *testing.T) {
	server := NewHealthServer(":0", testLogger())

	probe := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		server.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
		return rec
	}

	// Before the scheduler starts: 503.
	if rec := probe(); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 before SetReady, got %d", rec.Code)
	} else if got := decodeHealth(t, rec); got.Status != "not ready" {
		t.Errorf("expected status 'not ready', got %q", got.Status)
	}

	// Scheduler running: 200.
	server.SetReady(true)
	if rec := probe(); rec.Code != http.StatusOK {
		t.Errorf("expected 200 after SetReady(true), got %d", rec.Code)
	} else if got := decodeHealth(t, rec); got.Status != "ok" {
		t.Errorf("expected status 'ok', got %q", got.Status)
	}

	// Draining before shutdown: back to 503.
	server.SetReady(false)
	if rec := probe(); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 after SetReady(false), got %d", rec.Code)
	}
}

func TestHealthServer_StartAndGracefulShutdown(t *testing.T) {
	server := NewHealthServer("localhost:19095", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start(ctx)
	}()

	// Wait until the listener answers.
	deadline := time.Now().Add(2 * time.Second)
	var resp *http.Response
	var err error
	for time.Now().Before(deadline) {
		resp, err = http.Get("http://localhost:19095/health")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("health server never came up: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from live server, got %d", resp.StatusCode)
	}
	_ = resp.Body.Close()

	cancel()

	select {
	case err := <-errChan:
		if err != http.ErrServerClosed {
			t.Errorf("expected http.ErrServerClosed, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("shutdown timeout")
	}

	if _, err := http.Get("http://localhost:19095/health"); err == nil {
		t.Error("expected connection error after shutdown")
	}
}
