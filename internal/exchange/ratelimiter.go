package exchange

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between outbound requests for one
// source. Each signal generator owns its own limiter, so one slow or chatty
// generator never throttles the others.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastRequest time.Time
}

// NewRateLimiter creates a limiter with the given minimum request interval.
// A zero or negative interval disables the limiter.
func NewRateLimiter(minInterval time.Duration) *RateLimiter {
	return &RateLimiter{minInterval: minInterval}
}

// Wait blocks until the minimum interval since the previous request has
// elapsed, or until the context is done. Concurrent callers are serialized
// in arrival order of the internal lock.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r.minInterval <= 0 {
		return ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	wait := r.minInterval - time.Since(r.lastRequest)
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.lastRequest = time.Now()
	return nil
}
