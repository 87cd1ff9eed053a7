// Package ratelimit wraps a token-bucket limiter shared by all fetch workers
// so short-term request bursts stay within the provider's tolerance even when
// the daily quota still has headroom.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter is a drift-free token bucket. Tokens refill continuously at the
// configured rate; Acquire blocks until the requested tokens are available
// or the context is cancelled.
type Limiter struct {
	bucket *rate.Limiter
}

// New creates a limiter refilling ratePerSec tokens per second with the
// given burst capacity. A non-positive rate or burst is coerced to 1.
func New(ratePerSec float64, burst int) *Limiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Acquire blocks until n tokens are available. It returns an error if n
// exceeds the burst capacity or the context is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	if err := l.bucket.WaitN(ctx, n); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Allow reports whether n tokens are immediately available, consuming them
// if so. Used by opportunistic paths that prefer skipping over blocking.
func (l *Limiter) Allow(n int) bool {
	if n < 1 {
		n = 1
	}
	return l.bucket.AllowN(time.Now(), n)
}
