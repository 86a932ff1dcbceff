package prober

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/lukemcguire/siteprobe/config"
)

// RateLimiter admits at most Requests operations per Per interval across
// every fetch unit, with a burst of one. Waiters are served in reservation
// order, so none starves under a constant rate.
type RateLimiter struct {
	limiter *rate.Limiter
	limit   config.RateLimit
}

// NewRateLimiter returns nil for a zero RateLimit. A nil *RateLimiter admits
// every call immediately.
func NewRateLimiter(rl config.RateLimit) *RateLimiter {
	if rl.IsZero() {
		return nil
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Every(rl.Interval()), 1),
		limit:   rl,
	}
}

// Wait blocks until the limiter admits the caller or ctx is done.
// It is safe to call Wait from multiple goroutines concurrently.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Limit returns the configured rate.
func (r *RateLimiter) Limit() config.RateLimit {
	if r == nil {
		return config.RateLimit{}
	}
	return r.limit
}
