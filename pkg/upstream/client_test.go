package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig() Config {
	return Config{MaxRetries: 2, BaseBackoff: time.Millisecond}
}

func TestDoReturnsOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(), nil, nil, nil)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

type fakeRefresher struct {
	calls int32
	token string
}

func (f *fakeRefresher) ForceRefresh(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.token, nil
}

func TestDoRetriesOn403AfterRefresh(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		if n == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Header.Get("Authorization") != "Bearer fresh-token" {
			t.Errorf("expected refreshed token on retry, got %q", r.Header.Get("Authorization"))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	refresher := &fakeRefresher{token: "fresh-token"}
	c := NewClient(testConfig(), refresher, nil, nil)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, "stale-token")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if atomic.LoadInt32(&refresher.calls) != 1 {
		t.Errorf("ForceRefresh calls = %d, want 1", refresher.calls)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
}

type fakeLimiter struct{ notified int32 }

func (f *fakeLimiter) On429Received() { atomic.AddInt32(&f.notified, 1) }

func TestDoRetriesOn429AndNotifiesLimiter(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	limiter := &fakeLimiter{}
	c := NewClient(testConfig(), nil, limiter, nil)
	resp, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, "")
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if limiter.notified != 1 {
		t.Errorf("notified = %d, want 1", limiter.notified)
	}
}

func TestDoRetriesOn5xxThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(testConfig(), nil, nil, nil)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, "")
	if err == nil {
		t.Fatal("expected error after retries exhausted")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %T, want *StatusError", err)
	}
	if statusErr.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode = %d, want 502", statusErr.StatusCode)
	}
}

func TestDoFailsFastOn400(t *testing.T) {
	var requests int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testConfig(), nil, nil, nil)
	_, err := c.Do(context.Background(), http.MethodGet, srv.URL, nil, nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1 (no retry on 400)", requests)
	}
}

func TestDoFailsFastOnUnretryableTransportError(t *testing.T) {
	c := NewClient(testConfig(), nil, nil, nil)
	// A malformed URL surfaces as a client-side error immediately, not a
	// retryable classified transport failure.
	_, err := c.Do(context.Background(), http.MethodGet, "http://[::1]:namedport", nil, nil, "")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestResponseStatusUsesClassifiedHint(t *testing.T) {
	err := &ClassifiedError{Info: ErrorInfo{SuggestedStatus: 504}}
	if got := ResponseStatus(err, false); got != 504 {
		t.Errorf("ResponseStatus = %d, want 504", got)
	}
	if got := ResponseStatus(errors.New("boom"), true); got != http.StatusGatewayTimeout {
		t.Errorf("ResponseStatus fallback streaming = %d, want 504", got)
	}
	if got := ResponseStatus(errors.New("boom"), false); got != http.StatusBadGateway {
		t.Errorf("ResponseStatus fallback non-streaming = %d, want 502", got)
	}
}
