// Package ratelimiter provides a global token bucket for API requests.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides request rate limiting using the token bucket algorithm.
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with bursts of
// up to burst requests. A zero rate means unlimited.
func New(requestsPerSecond float64, burst int) *RateLimiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// RetryAfter estimates how long until the next token is available, rounded
// up to whole seconds for the Retry-After header.
func (r *RateLimiter) RetryAfter() time.Duration {
	if r.limiter.Limit() == rate.Inf {
		return 0
	}
	missing := 1 - r.limiter.Tokens()
	if missing <= 0 {
		return 0
	}
	d := time.Duration(missing / float64(r.limiter.Limit()) * float64(time.Second))
	return d.Truncate(time.Second) + time.Second
}
