package portal

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alem-hub/schoolportal/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiterConfig configures the client-side token bucket.
type RateLimiterConfig struct {
	RequestsPerSecond float64       // refill rate; <= 0 disables limiting
	BurstSize         int           // bucket capacity, at least 1
	MinInterval       time.Duration // spacing between requests even with tokens left
	WaitTimeout       time.Duration // longest Allow will block
}

// DefaultRateLimiterConfig keeps well under the portal quota.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5,
		BurstSize:         10,
		MinInterval:       50 * time.Millisecond,
		WaitTimeout:       30 * time.Second,
	}
}

// RateLimiter is a token bucket shared by every request of a Client. A 429
// from the portal empties it and blocks it until Retry-After passes.
type RateLimiter struct {
	cfg      RateLimiterConfig
	capacity float64
	now      func() time.Time

	mu        sync.Mutex
	tokens    float64
	refilled  time.Time
	last      time.Time
	blockedTo time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg:      config,
		capacity: math.Max(float64(config.BurstSize), 1),
		now:      time.Now,
	}
	rl.Reset()
	return rl
}

func (rl *RateLimiter) disabled() bool { return rl.cfg.RequestsPerSecond <= 0 }

// RateLimitError means a request was not sent, or was refused with 429,
// because of rate limiting. It matches shared.ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string        { return e.Message }
func (e *RateLimitError) Is(target error) bool { return target == shared.ErrRateLimited }

// Allow waits for a token. It gives up with a RateLimitError when the wait
// would exceed WaitTimeout and returns ctx.Err() when ctx ends first.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	if rl.disabled() {
		return nil
	}
	deadline := rl.now().Add(rl.cfg.WaitTimeout)

	for {
		wait := rl.reserve()
		if wait == 0 {
			return nil
		}
		if rl.now().Add(wait).After(deadline) {
			return &RateLimitError{
				RetryAfter: wait,
				Message:    fmt.Sprintf("rate limit exceeded, retry after %s", wait),
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token if one is available right now.
func (rl *RateLimiter) TryAllow() bool {
	return rl.disabled() || rl.reserve() == 0
}

// reserve takes a token and returns 0, or returns how long until one could be taken.
func (rl *RateLimiter) reserve() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if elapsed := now.Sub(rl.refilled).Seconds(); elapsed > 0 {
		rl.tokens = math.Min(rl.capacity, rl.tokens+elapsed*rl.cfg.RequestsPerSecond)
		rl.refilled = now
	}

	if now.Before(rl.blockedTo) {
		return rl.blockedTo.Sub(now)
	}
	if gap := now.Sub(rl.last); gap < rl.cfg.MinInterval {
		return rl.cfg.MinInterval - gap
	}
	if rl.tokens < 1 {
		return time.Duration(math.Ceil((1 - rl.tokens) / rl.cfg.RequestsPerSecond * float64(time.Second)))
	}

	rl.tokens--
	rl.last = now
	return 0
}

// RecordRateLimitHit empties the bucket and blocks it for retryAfter.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = 0
	rl.blockedTo = rl.now().Add(retryAfter)
}

// Reset refills the bucket and lifts any block.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	rl.tokens = rl.capacity
	rl.refilled = now
	rl.last = now.Add(-rl.cfg.MinInterval)
	rl.blockedTo = time.Time{}
}
