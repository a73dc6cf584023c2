package resilience

import (
	"context"
	"time"
)

// Retry defaults. Two retries with delays of 1s then 2s, capped at 4s.
const (
	DefaultMaxRetries = 2
	DefaultBaseDelay  = time.Second
	DefaultMaxDelay   = 4 * time.Second
)

// RetryContext describes where a logical request is in its retry sequence.
// It is passed by value to every attempt; nothing is recorded on the request
// itself.
type RetryContext struct {
	// Attempt is 0 for the original send and n for the n-th retry.
	Attempt int

	// HasRetried is true once at least one retry has been issued.
	HasRetried bool
}

// next returns the context for the following retry.
func (rc RetryContext) next() RetryContext {
	return RetryContext{Attempt: rc.Attempt + 1, HasRetried: true}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryConfig configures the retry behavior.
type RetryConfig struct {
	// MaxRetries is the number of retries after the original attempt.
	// Default: 2
	MaxRetries int

	// BaseDelay is the delay before the first retry.
	// Default: 1s
	BaseDelay time.Duration

	// MaxDelay caps the delay between retries.
	// Default: 4s
	MaxDelay time.Duration

	// RetryIf determines if an error should trigger a retry.
	// Default: all non-nil errors trigger retry.
	RetryIf func(err error) bool

	// OnRetry is called before waiting for each retry.
	OnRetry func(rc RetryContext, err error, delay time.Duration)

	// Sleep replaces the real timer. Default: SleepContext.
	Sleep SleepFunc
}

// Retry implements retry with capped exponential backoff and no jitter.
type Retry struct {
	config RetryConfig
}

// NewRetry creates a new retry handler.
func NewRetry(config RetryConfig) *Retry {
	// Apply defaults
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = DefaultBaseDelay
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = DefaultMaxDelay
	}
	if config.RetryIf == nil {
		config.RetryIf = func(err error) bool { return err != nil }
	}
	if config.Sleep == nil {
		config.Sleep = SleepContext
	}

	return &Retry{config: config}
}

// Do runs op, retrying while RetryIf accepts the error and retries remain.
// Attempts are strictly sequential. The context is checked while waiting, so
// a cancelled caller stops the sequence with ctx.Err().
func (r *Retry) Do(ctx context.Context, op func(context.Context, RetryContext) error) error {
	rc := RetryContext{}

	for {
		err := op(ctx, rc)
		if err == nil {
			return nil
		}

		if !r.config.RetryIf(err) {
			return err
		}

		if rc.Attempt >= r.config.MaxRetries {
			return err
		}

		rc = rc.next()
		delay := r.Delay(rc.Attempt)

		if r.config.OnRetry != nil {
			r.config.OnRetry(rc, err, delay)
		}

		if serr := r.config.Sleep(ctx, delay); serr != nil {
			return serr
		}
	}
}

// Execute runs op with retry logic, ignoring the retry context.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	return r.Do(ctx, func(ctx context.Context, _ RetryContext) error {
		return op(ctx)
	})
}

// Delay returns the wait before retry number attempt using this handler's
// base and cap.
func (r *Retry) Delay(attempt int) time.Duration {
	return backoff(attempt, r.config.BaseDelay, r.config.MaxDelay)
}

// Config returns the retry configuration.
func (r *Retry) Config() RetryConfig {
	return r.config
}

// Backoff returns min(1s * 2^(attempt-1), 4s) for attempt >= 1.
func Backoff(attempt int) time.Duration {
	return backoff(attempt, DefaultBaseDelay, DefaultMaxDelay)
}

func backoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}

// SleepContext blocks for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
