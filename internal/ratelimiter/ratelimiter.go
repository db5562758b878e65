package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter admits repository operations using the token bucket algorithm.
//
// Every operation takes one token before it touches the store. When the
// bucket is empty the operation waits for the next token instead of being
// rejected, so a burst of calls is smoothed rather than failed.
//
// A limiter built with a zero rate admits everything immediately and never
// touches the underlying bucket.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter   *rate.Limiter
	unlimited bool
}

// New creates a RateLimiter with the given sustained rate and burst capacity.
//
// Parameters:
//   - requestsPerSecond: Sustained admission rate; 0 disables limiting
//   - burst: Bucket capacity; 0 defaults to requestsPerSecond (at least 1)
//
// Example:
//
//	// 50 operations/s sustained, bursts of up to 100
//	limiter := New(50, 100)
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{
			limiter:   rate.NewLimiter(rate.Inf, 0),
			unlimited: true,
		}
	}

	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r == nil || r.unlimited
}

// Admit takes a token, waiting for one if necessary.
//
// Returns:
//   - time.Duration: How long the caller was held back
//   - error: ctx's error if it ended before a token was available (the
//     reserved token is returned to the bucket)
func (r *RateLimiter) Admit(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if r.Unlimited() {
		return 0, nil
	}

	reservation := r.limiter.Reserve()
	if !reservation.OK() {
		return 0, fmt.Errorf("rate limiter: burst %d cannot admit a single operation", r.limiter.Burst())
	}

	delay := reservation.Delay()
	if delay == 0 {
		return 0, nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		reservation.Cancel()
		return 0, ctx.Err()
	case <-timer.C:
		return delay, nil
	}
}

// Tokens returns the current number of available tokens (monitoring only).
func (r *RateLimiter) Tokens() float64 {
	if r.Unlimited() {
		return 0
	}
	return r.limiter.Tokens()
}
