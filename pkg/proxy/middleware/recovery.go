package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"

	"mercator-hq/relay/pkg/relayerr"
)

// isAnthropicPath reports whether path belongs to the Anthropic dialect, so
// middleware that fires before routing (recovery, timeout) can still render
// the error shape the client on the other end expects.
func isAnthropicPath(path string) bool {
	return strings.HasPrefix(path, "/v1/messages")
}

// RecoveryMiddleware recovers from panics in HTTP handlers and returns a 500
// Internal Server Error response in the OpenAI error shape, or the Anthropic
// shape for /v1/messages paths. It logs the panic
// with stack trace for debugging but does not expose internal details to clients.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				// Get request ID for correlation
				requestID := GetRequestID(r.Context())
				if requestID == "" {
					// RequestIDMiddleware may run inside this one; its id is
					// then only on the response header.
					requestID = w.Header().Get(RequestIDHeader)
				}

				// Capture stack trace
				stack := debug.Stack()

				// Log the panic with stack trace
				slog.ErrorContext(r.Context(), "panic in handler",
					"error", err,
					"request_id", requestID,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stack),
				)

				// Build a dialect-appropriate error body without knowing which
				// handler was running when it panicked.
				errResp := relayerr.New(relayerr.KindUpstreamTransport, http.StatusInternalServerError,
					"An internal error occurred. Please try again later.")
				body := errResp.OpenAIBody()
				if isAnthropicPath(r.URL.Path) {
					body = errResp.AnthropicBody()
				}

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)

				// Encode error response (ignore encoding errors at this point)
				_ = json.NewEncoder(w).Encode(body)
			}
		}()

		// Call next handler
		next.ServeHTTP(w, r)
	})
}
