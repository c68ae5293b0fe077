// Package ratelimit implements the gateway's single global admission
// control in front of the upstream: a FIFO concurrency gate, a minimum
// inter-request interval throttle, and an extend-only backoff window
// triggered by upstream 429 responses.
//
// Unlike a simple reject-on-full limiter, Acquire queues callers in
// arrival order and wakes them one at a time as slots free up — exactly
// the behavior needed so that a burst of client requests drains through
// the single upstream account pool fairly rather than letting whichever
// goroutine the Go scheduler favors cut the line.
package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Config configures a Limiter. A zero value in any field disables that
// particular control.
type Config struct {
	// MaxConcurrent is the maximum number of in-flight upstream requests.
	// 0 means unlimited.
	MaxConcurrent int
	// MinInterval is the minimum spacing enforced between the start of
	// consecutive requests. 0 disables throttling.
	MinInterval time.Duration
	// Backoff429 is how long a received 429 pauses all new requests for.
	// 0 disables backoff handling.
	Backoff429 time.Duration
}

// Limiter is the gateway-wide admission gate described by Config.
type Limiter struct {
	cfg Config

	mu           sync.Mutex
	currentCount int
	waiters      []chan struct{}
	maxQueueLen  int

	throttleMu      sync.Mutex
	lastRequestTime time.Time

	backoffMu    sync.Mutex
	backoffUntil time.Time

	totalRequests atomic.Int64
	total429s     atomic.Int64
	totalWaitNs   atomic.Int64
}

// New constructs a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg}
}

// Stats is a snapshot of the limiter's counters, mirroring the reference
// implementation's get_stats().
type Stats struct {
	TotalRequests       int64
	Total429s           int64
	TotalWaitTime       time.Duration
	AvgWaitTime         time.Duration
	MaxQueueLength      int
	CurrentQueueLength  int
	CurrentActive       int
}

// IsEnabled reports whether any control is active.
func (l *Limiter) IsEnabled() bool {
	return l.cfg.MaxConcurrent > 0 || l.cfg.MinInterval > 0 || l.cfg.Backoff429 > 0
}

// Acquire blocks until the caller may proceed with an upstream request, in
// three steps: join the FIFO concurrency queue (if MaxConcurrent > 0), wait
// out any active 429 backoff window, then wait out the minimum interval
// throttle. It returns the total time spent waiting, or ctx.Err() if ctx is
// canceled before all three steps complete — in which case any concurrency
// slot already granted is released (passed to the next waiter) before
// returning, so a canceled caller never leaks capacity.
func (l *Limiter) Acquire(ctx context.Context) (time.Duration, error) {
	start := time.Now()

	if l.cfg.MaxConcurrent > 0 {
		if err := l.acquireSlot(ctx); err != nil {
			return 0, err
		}
	}

	if l.cfg.Backoff429 > 0 {
		if err := l.waitOutBackoff(ctx); err != nil {
			l.Release()
			return 0, err
		}
	}

	if l.cfg.MinInterval > 0 {
		if err := l.applyMinInterval(ctx); err != nil {
			l.Release()
			return 0, err
		}
	}

	l.totalRequests.Add(1)
	wait := time.Since(start)
	l.totalWaitNs.Add(int64(wait))
	return wait, nil
}

func (l *Limiter) acquireSlot(ctx context.Context) error {
	l.mu.Lock()
	if l.currentCount < l.cfg.MaxConcurrent {
		l.currentCount++
		l.mu.Unlock()
		return nil
	}

	ticket := make(chan struct{})
	l.waiters = append(l.waiters, ticket)
	if len(l.waiters) > l.maxQueueLen {
		l.maxQueueLen = len(l.waiters)
	}
	l.mu.Unlock()

	select {
	case <-ticket:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == ticket {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// Lost the race: the ticket was granted concurrently. We hold a
		// slot we will never use, so pass it to the next waiter.
		l.Release()
		return ctx.Err()
	}
}

// Release gives up a concurrency slot, handing it directly to the longest-
// waiting caller if one exists (the count is not decremented in that case
// — the slot is passed forward, not freed and re-acquired).
func (l *Limiter) Release() {
	if l.cfg.MaxConcurrent <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next)
		return
	}
	l.currentCount--
}

func (l *Limiter) waitOutBackoff(ctx context.Context) error {
	l.backoffMu.Lock()
	until := l.backoffUntil
	l.backoffMu.Unlock()

	wait := time.Until(until)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Limiter) applyMinInterval(ctx context.Context) error {
	l.throttleMu.Lock()
	defer l.throttleMu.Unlock()

	elapsed := time.Since(l.lastRequestTime)
	if elapsed < l.cfg.MinInterval {
		wait := l.cfg.MinInterval - elapsed
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.lastRequestTime = time.Now()
	return nil
}

// On429Received extends the backoff window to now+Backoff429, but only if
// that is later than the window already in effect — a 429 can never
// shorten an existing backoff.
func (l *Limiter) On429Received() {
	if l.cfg.Backoff429 <= 0 {
		return
	}
	l.backoffMu.Lock()
	defer l.backoffMu.Unlock()

	candidate := time.Now().Add(l.cfg.Backoff429)
	if candidate.After(l.backoffUntil) {
		l.backoffUntil = candidate
		l.total429s.Add(1)
	}
}

// GetStats returns a snapshot of the limiter's counters.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	queueLen := len(l.waiters)
	maxQueue := l.maxQueueLen
	active := l.currentCount
	l.mu.Unlock()

	total := l.totalRequests.Load()
	totalWait := time.Duration(l.totalWaitNs.Load())
	avg := time.Duration(0)
	if total > 0 {
		avg = totalWait / time.Duration(total)
	}

	return Stats{
		TotalRequests:      total,
		Total429s:          l.total429s.Load(),
		TotalWaitTime:      totalWait,
		AvgWaitTime:        avg,
		MaxQueueLength:     maxQueue,
		CurrentQueueLength: queueLen,
		CurrentActive:      active,
	}
}
