package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *APIClient {
	c := NewAPIClient(url)
	c.retryDelay = time.Millisecond
	c.maxRetries = 2
	return c
}

func TestPublishSendsDeviceToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/data/publish" || r.Header.Get("X-Auth-Token") != "tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"message":"Data published for 1 pin(s).","data":[{"pin":"V0","value":1.5}],"timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Publish(context.Background(), "tok", []byte(`{"virtual_pins":{"V0":1.5}}`))
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Pin != "V0" || resp.Data[0].Value != 1.5 {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestPublishDoesNotRetryPermanentErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"success":false,"message":"Invalid or revoked device token."}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Publish(context.Background(), "bad", []byte(`{}`))

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 APIError, got %v", err)
	}
	if apiErr.Message != "Invalid or revoked device token." {
		t.Errorf("unexpected message %q", apiErr.Message)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
	if c.circuitBreaker.State() != StateClosed {
		t.Error("permanent errors must not trip the breaker")
	}
}

func TestPublishRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"data":[]}`))
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).Publish(context.Background(), "tok", []byte(`{}`)); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 30*time.Second)
	cb.now = func() time.Time { return now }

	cb.onFailure()
	if !cb.allow() {
		t.Fatal("breaker should stay closed below the failure limit")
	}
	cb.onFailure()
	if cb.allow() {
		t.Fatal("breaker should be open after reaching the limit")
	}

	now = now.Add(31 * time.Second)
	if !cb.allow() || cb.State() != StateHalfOpen {
		t.Fatalf("expected a half-open probe, state %v", cb.State())
	}

	cb.onFailure()
	if cb.State() != StateOpen {
		t.Fatal("failed probe should reopen the breaker")
	}

	now = now.Add(31 * time.Second)
	cb.allow()
	cb.onSuccess()
	if cb.State() != StateClosed {
		t.Errorf("successful probe should close the breaker, got %v", cb.State())
	}
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	c.circuitBreaker = NewCircuitBreaker(1, time.Hour)

	if _, err := c.Publish(context.Background(), "tok", []byte(`{}`)); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected breaker to open mid-retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("expected 1 call before the breaker opened, got %d", calls)
	}
}
