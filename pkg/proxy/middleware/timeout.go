package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"mercator-hq/relay/pkg/relayerr"
)

// TimeoutMiddleware enforces a per-request timeout using context.WithTimeout.
// If the timeout is exceeded, the request context is cancelled and a 504
// Gateway Timeout error is returned.
//
// The timeout applies to the entire request processing pipeline including
// the upstream call. Handlers should check context.Done() to detect
// cancellation. For streaming endpoints, timeout should be set to cover the
// whole response (e.g. the configured write timeout), not just time to
// first byte.
//
// Example usage:
//
//	handler = TimeoutMiddleware(60 * time.Second)(handler)
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				next.ServeHTTP(w, r.WithContext(ctx))
			}()

			select {
			case <-done:
				return
			case <-ctx.Done():
				if ctx.Err() != context.DeadlineExceeded {
					return
				}
				errResp := relayerr.New(relayerr.KindFirstTokenTimeout, http.StatusGatewayTimeout,
					"request timeout: the request took too long to complete")
				body := errResp.OpenAIBody()
				if isAnthropicPath(r.URL.Path) {
					body = errResp.AnthropicBody()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusGatewayTimeout)
				_ = json.NewEncoder(w).Encode(body)
				// The handler goroutine above is still running against the
				// now-canceled ctx; it is responsible for returning once it
				// observes ctx.Done().
			}
		})
	}
}
