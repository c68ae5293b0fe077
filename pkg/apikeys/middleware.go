package apikeys

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// contextKey is an unexported type so context values set by this package
// can't collide with keys set elsewhere.
type contextKey string

// #nosec G101 - this is a context key constant, not a credential
const keyInfoContextKey contextKey = "apikeys.key_info"

// Middleware authenticates incoming requests against a Manager, accepting
// either an "Authorization: Bearer sk-..." header or an "x-api-key"
// header, matching the two client auth schemes the gateway's dialects use.
type Middleware struct {
	manager *Manager
	log     *slog.Logger
}

// NewMiddleware constructs a Middleware backed by manager.
func NewMiddleware(manager *Manager, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{manager: manager, log: logger.With("component", "apikeys.middleware")}
}

// Handle wraps next, rejecting any request without a valid, active,
// within-limits API key.
func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plaintext := extractKey(r)
		if plaintext == "" {
			m.log.Warn("missing api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "missing API key", http.StatusUnauthorized)
			return
		}

		key, err := m.manager.ValidateKey(r.Context(), plaintext)
		if err != nil {
			m.log.Error("api key validation failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if key == nil {
			m.log.Warn("invalid api key", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "invalid API key", http.StatusUnauthorized)
			return
		}

		ok, reason, err := m.manager.CheckUsageLimits(r.Context(), key.ID)
		if err != nil {
			m.log.Error("usage limit check failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if !ok {
			m.log.Info("api key over usage limit", "key_id", key.KeyID, "reason", reason)
			http.Error(w, reason, http.StatusTooManyRequests)
			return
		}

		ctx := context.WithValue(r.Context(), keyInfoContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractKey(r *http.Request) string {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v
	}
	if v := r.Header.Get("Authorization"); v != "" {
		if rest, ok := strings.CutPrefix(v, "Bearer "); ok {
			return rest
		}
	}
	return ""
}

// FromContext retrieves the authenticated Key attached by Middleware.
func FromContext(ctx context.Context) (*Key, bool) {
	key, ok := ctx.Value(keyInfoContextKey).(*Key)
	return key, ok
}
