// Package server implements a token bucket rate limiter for per-connection
// throttling that protects the chat core from abuse.
package server

import (
	"time"

	"golang.org/x/time/rate"
)

// rateLimiter allows capacity messages per interval with bursts up to capacity.
type rateLimiter struct {
	limiter *rate.Limiter
}

func newRateLimiter(capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	limit := rate.Limit(float64(capacity) / interval.Seconds())
	return &rateLimiter{limiter: rate.NewLimiter(limit, capacity)}
}

func (rl *rateLimiter) allow() bool {
	return rl.limiter.Allow()
}
