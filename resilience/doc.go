// Package resilience provides the failure-handling building blocks used by
// the API client and the push sender.
//
// # Retry
//
// Retry resends an operation after transient failures using capped
// exponential backoff without jitter. With the defaults a logical request is
// sent at most three times, waiting 1s before the first retry and 2s before
// the second; no delay ever exceeds 4s. The current position in the sequence
// is passed to every attempt as a RetryContext value:
//
//	r := resilience.NewRetry(resilience.RetryConfig{
//	    RetryIf: isTransient,
//	})
//	err := r.Do(ctx, func(ctx context.Context, rc resilience.RetryContext) error {
//	    return send(ctx, rc)
//	})
//
// # Circuit breaking
//
// CircuitBreaker stops calling a failing dependency after MaxFailures
// consecutive failures and tries it again after ResetTimeout.
// CircuitRegistry keeps one breaker per endpoint group so that one broken
// backend area does not block the rest.
//
// # Limits
//
// Timeout bounds a single attempt (15s by default). RateLimiter is a token
// bucket and Bulkhead caps concurrency. Executor composes all of them:
//
//	executor := resilience.NewExecutor(
//	    resilience.WithRateLimiter(rl),
//	    resilience.WithBulkhead(bh),
//	    resilience.WithRetry(retry),
//	    resilience.WithTimeout(10*time.Second),
//	)
package resilience
