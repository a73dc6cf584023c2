package resilience

import (
	"context"
	"time"
)

// Op is an operation that can see where it is in a retry sequence.
type Op func(ctx context.Context, rc RetryContext) error

// Executor composes the resilience patterns around one operation.
//
// Order, outermost first: rate limiter, bulkhead, circuit breaker, retry,
// timeout. The timeout therefore applies per attempt, and a whole retry
// sequence counts as one circuit breaker outcome.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithTimeout bounds every attempt by timeout.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout}) }
}

// WithTimeoutConfig uses an existing Timeout for every attempt.
func WithTimeoutConfig(t *Timeout) ExecutorOption {
	return func(e *Executor) { e.timeout = t }
}

// Execute runs op through every configured pattern.
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	return e.Do(ctx, func(ctx context.Context, _ RetryContext) error {
		return op(ctx)
	})
}

// Do runs op through every configured pattern, passing the retry context to
// each attempt. Without a retry policy op runs once with the zero context.
func (e *Executor) Do(ctx context.Context, op Op) error {
	attempt := op
	if e.timeout != nil {
		inner := attempt
		attempt = func(ctx context.Context, rc RetryContext) error {
			return e.timeout.Execute(ctx, func(ctx context.Context) error {
				return inner(ctx, rc)
			})
		}
	}

	run := func(ctx context.Context) error {
		if e.retry != nil {
			return e.retry.Do(ctx, attempt)
		}
		return attempt(ctx, RetryContext{})
	}

	if e.circuitBreaker != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.circuitBreaker.Execute(ctx, inner)
		}
	}
	if e.bulkhead != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.bulkhead.Execute(ctx, inner)
		}
	}
	if e.rateLimiter != nil {
		inner := run
		run = func(ctx context.Context) error {
			return e.rateLimiter.Execute(ctx, inner)
		}
	}

	return run(ctx)
}
