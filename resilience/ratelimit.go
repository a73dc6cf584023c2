package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of operations allowed per second.
	// Default: 100
	Rate float64

	// Burst is the bucket size.
	// Default: 10
	Burst int

	// WaitOnLimit makes Execute wait for a token instead of failing.
	WaitOnLimit bool

	// MaxWait caps a single wait for tokens.
	// Default: 1 second
	MaxWait time.Duration

	// Now replaces time.Now for refills.
	Now func() time.Time
}

// RateLimiter is a token bucket. The zero value is not usable; use
// NewRateLimiter.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 100
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &RateLimiter{
		config: config,
		tokens: float64(config.Burst),
		last:   config.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	return rl.AllowN(1)
}

// AllowN takes n tokens if all of them are available.
func (rl *RateLimiter) AllowN(n int) bool {
	ok, _ := rl.take(n)
	return ok
}

// take removes n tokens, or reports how long until they would be available.
func (rl *RateLimiter) take(n int) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()

	need := float64(n)
	if rl.tokens >= need {
		rl.tokens -= need
		return true, 0
	}
	missing := need - rl.tokens
	return false, time.Duration(missing / rl.config.Rate * float64(time.Second))
}

// Wait blocks until a token is available or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n tokens are available, for at most MaxWait.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ok, wait := rl.take(n)
	if ok {
		return nil
	}
	if wait > rl.config.MaxWait {
		wait = rl.config.MaxWait
	}

	if err := SleepContext(ctx, wait); err != nil {
		return err
	}
	if rl.AllowN(n) {
		return nil
	}
	return ErrRateLimitExceeded
}

// Execute runs op once a token is granted.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if rl.config.WaitOnLimit {
		if err := rl.Wait(ctx); err != nil {
			return err
		}
	} else if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Now()
	elapsed := now.Sub(rl.last)
	rl.last = now
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed.Seconds() * rl.config.Rate
	if burst := float64(rl.config.Burst); rl.tokens > burst {
		rl.tokens = burst
	}
}

// Tokens returns the number of tokens currently available.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

// Reset refills the bucket.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.tokens = float64(rl.config.Burst)
	rl.last = rl.config.Now()
}
