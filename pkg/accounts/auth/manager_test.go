package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type fakeOrigin struct {
	loaded Credentials
	saved  []Credentials
}

func (f *fakeOrigin) Load(ctx context.Context) (Credentials, error) {
	return f.loaded, nil
}

func (f *fakeOrigin) Save(ctx context.Context, creds Credentials) error {
	f.saved = append(f.saved, creds)
	return nil
}

func TestGetAccessTokenReturnsCachedWhenFresh(t *testing.T) {
	m := New(Credentials{
		Type:         TypeDesktop,
		AccessToken:  "cached-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	})

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "cached-token" {
		t.Errorf("token = %q, want cached-token", token)
	}
}

func TestGetAccessTokenRefreshesWhenExpiringSoon(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req desktopRefreshRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.RefreshToken != "refresh" {
			t.Errorf("unexpected refresh token in request: %q", req.RefreshToken)
		}
		json.NewEncoder(w).Encode(desktopRefreshResponse{
			AccessToken:  "new-token",
			RefreshToken: "new-refresh",
			ExpiresIn:    3600,
		})
	}))
	defer server.Close()

	m := New(Credentials{
		Type:         TypeDesktop,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})
	m.endpoints.RefreshURL = server.URL

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "new-token" {
		t.Errorf("token = %q, want new-token", token)
	}
}

func TestGetAccessTokenReloadsFromOriginBeforeRefreshing(t *testing.T) {
	refreshCalled := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshCalled = true
		json.NewEncoder(w).Encode(desktopRefreshResponse{AccessToken: "should-not-be-used", ExpiresIn: 3600})
	}))
	defer server.Close()

	origin := &fakeOrigin{loaded: Credentials{
		Type:         TypeDesktop,
		AccessToken:  "reloaded-fresh-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}}

	m := New(Credentials{
		Type:         TypeDesktop,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}, WithOrigin(origin))
	m.endpoints.RefreshURL = server.URL

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "reloaded-fresh-token" {
		t.Errorf("token = %q, want reloaded-fresh-token", token)
	}
	if refreshCalled {
		t.Error("expected refresh endpoint to not be called when origin reload provides a fresh token")
	}
}

func TestGetAccessTokenGracefulDegradationOnRefreshFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := New(Credentials{
		Type:         TypeDesktop,
		AccessToken:  "still-valid-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Minute), // expiring soon, but not yet expired
	})
	m.endpoints.RefreshURL = server.URL

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("expected graceful degradation, got error: %v", err)
	}
	if token != "still-valid-token" {
		t.Errorf("token = %q, want still-valid-token", token)
	}
}

func TestGetAccessTokenFailsWhenExpiredAndRefreshFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	m := New(Credentials{
		Type:         TypeDesktop,
		AccessToken:  "expired-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Hour),
	})
	m.endpoints.RefreshURL = server.URL

	if _, err := m.GetAccessToken(context.Background()); err == nil {
		t.Error("expected an error when the token is expired and refresh fails")
	}
}

func TestGetAccessTokenOIDCRetriesOnceAfter400(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(oidcRefreshResponse{AccessToken: "retried-token", ExpiresIn: 3600})
	}))
	defer server.Close()

	origin := &fakeOrigin{loaded: Credentials{
		Type:         TypeOIDC,
		RefreshToken: "reloaded-refresh",
		ClientID:     "client",
		ClientSecret: "secret",
	}}

	m := New(Credentials{
		Type:         TypeOIDC,
		RefreshToken: "stale-refresh",
		ClientID:     "client",
		ClientSecret: "secret",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}, WithOrigin(origin))

	m.creds.OIDCRegion = "us-east-1"

	// OIDCTokenURL builds a fixed AWS hostname; redirect at the transport
	// level to the test server instead of overriding the URL directly.
	m.httpClient = server.Client()
	m.httpClient.Transport = rewriteHostTransport{target: server.URL}

	token, err := m.GetAccessToken(context.Background())
	if err != nil {
		t.Fatalf("GetAccessToken: %v", err)
	}
	if token != "retried-token" {
		t.Errorf("token = %q, want retried-token", token)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

// rewriteHostTransport redirects every request to target, preserving path
// and body — used to exercise fixed-hostname refresh endpoints against a
// local httptest server.
type rewriteHostTransport struct {
	target string
}

func (t rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	targetURL, err := http.NewRequest(req.Method, t.target+req.URL.Path, req.Body)
	if err != nil {
		return nil, err
	}
	targetURL.Header = req.Header
	return http.DefaultTransport.RoundTrip(targetURL)
}

func TestExpiringSoonAndExpired(t *testing.T) {
	m := New(Credentials{ExpiresAt: time.Now().Add(2 * time.Hour)})
	if m.expiringSoonLocked() {
		t.Error("token two hours out should not be expiring soon")
	}

	m2 := New(Credentials{ExpiresAt: time.Now().Add(30 * time.Second)})
	if !m2.expiringSoonLocked() {
		t.Error("token 30s out should be expiring soon")
	}

	m3 := New(Credentials{})
	if !m3.expiringSoonLocked() || !m3.expiredLocked() {
		t.Error("a zero ExpiresAt should be treated as expiring soon and expired")
	}
}
