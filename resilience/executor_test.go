package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestExecutor_NoPatterns(t *testing.T) {
	e := NewExecutor()

	calls := 0
	err := e.Do(context.Background(), func(ctx context.Context, rc RetryContext) error {
		calls++
		if rc != (RetryContext{}) {
			t.Errorf("rc = %+v, want zero value without retry", rc)
		}
		return nil
	})
	if err != nil || calls != 1 {
		t.Errorf("Do() err=%v calls=%d", err, calls)
	}
}

func TestExecutor_RetryPerAttemptTimeout(t *testing.T) {
	s := &recordingSleeper{}
	e := NewExecutor(
		WithRetry(NewRetry(RetryConfig{
			Sleep:   s.Sleep,
			RetryIf: func(err error) bool { return errors.Is(err, ErrTimeout) },
		})),
		WithTimeout(10*time.Millisecond),
	)

	var final RetryContext
	err := e.Do(context.Background(), func(ctx context.Context, rc RetryContext) error {
		if rc.Attempt < 2 {
			<-ctx.Done()
			return ctx.Err()
		}
		final = rc
		return nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if final != (RetryContext{Attempt: 2, HasRetried: true}) {
		t.Errorf("final attempt context = %+v, want second retry", final)
	}
	if len(s.delays) != 2 {
		t.Errorf("delays = %v, want two waits", s.delays)
	}
}

func TestExecutor_CircuitCountsWholeSequence(t *testing.T) {
	s := &recordingSleeper{}
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2})
	e := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetry(NewRetry(RetryConfig{Sleep: s.Sleep})),
	)

	calls := 0
	op := func(context.Context) error { calls++; return errServer }

	_ = e.Execute(context.Background(), op)
	if cb.State() != StateClosed {
		t.Fatalf("one exhausted sequence should count once, state = %v", cb.State())
	}
	_ = e.Execute(context.Background(), op)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want open after two sequences", cb.State())
	}
	if calls != 6 {
		t.Errorf("calls = %d, want 6", calls)
	}

	if err := e.Execute(context.Background(), op); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() = %v, want ErrCircuitOpen", err)
	}
}

func TestExecutor_LimitsRejectBeforeRunning(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, Now: newTestClock().Now})
	bh := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	e := NewExecutor(WithRateLimiter(rl), WithBulkhead(bh))
	ctx := context.Background()

	if err := e.Execute(ctx, succeed); err != nil {
		t.Fatal(err)
	}
	calls := 0
	err := e.Execute(ctx, func(context.Context) error { calls++; return nil })
	if !errors.Is(err, ErrRateLimitExceeded) || calls != 0 {
		t.Errorf("err=%v calls=%d, want ErrRateLimitExceeded without a call", err, calls)
	}

	rl.Reset()
	_ = bh.Acquire(ctx)
	if err := e.Execute(ctx, succeed); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() = %v, want ErrBulkheadFull", err)
	}
}

func TestWithTimeoutConfig(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: 5 * time.Second})
	e := NewExecutor(WithTimeoutConfig(timeout))

	if e.timeout != timeout {
		t.Error("WithTimeoutConfig should install the given Timeout")
	}
}
