package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// AccountThrottle smooths the request rate for a single upstream account
// on top of the gateway-wide Limiter, using a token bucket rather than a
// FIFO queue since per-account smoothing only needs to cap burstiness, not
// guarantee absolute ordering across callers.
type AccountThrottle struct {
	limiter *rate.Limiter
}

// NewAccountThrottle builds a token-bucket throttle allowing up to
// ratePerSecond sustained requests with burst as the instantaneous cap. A
// ratePerSecond of 0 disables throttling (Wait always returns immediately).
func NewAccountThrottle(ratePerSecond float64, burst int) *AccountThrottle {
	if ratePerSecond <= 0 {
		return &AccountThrottle{limiter: rate.NewLimiter(rate.Inf, burst)}
	}
	return &AccountThrottle{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is canceled.
func (t *AccountThrottle) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
