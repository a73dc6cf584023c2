package resilience

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	// StateClosed lets every request through.
	StateClosed State = iota
	// StateOpen rejects requests until the reset window ends.
	StateOpen
	// StateHalfOpen lets a limited number of trial requests through.
	StateHalfOpen
)

var stateNames = [...]string{
	StateClosed:   "closed",
	StateOpen:     "open",
	StateHalfOpen: "half-open",
}

// String returns the state name used in logs and health details.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// CircuitBreakerConfig configures a breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the run of consecutive failures that opens the
	// circuit. Default: 5
	MaxFailures int

	// ResetTimeout is how long an open circuit rejects requests.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests bounds concurrent trial requests. Default: 1
	HalfOpenMaxRequests int

	// OnStateChange observes transitions. It runs with the breaker locked
	// and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure decides which errors count. Default: any non-nil error.
	IsFailure func(err error) bool

	// Now replaces time.Now.
	Now func() time.Time
}

func (c CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxRequests <= 0 {
		c.HalfOpenMaxRequests = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = func(err error) bool { return err != nil }
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// CircuitBreakerMetrics is a snapshot of a breaker.
type CircuitBreakerMetrics struct {
	State State
	// Failures is the current run of consecutive failures.
	Failures int
	// Successes counts successful calls since the breaker was created or
	// reset.
	Successes   int
	LastFailure time.Time
}

// CircuitBreaker stops calling a dependency that keeps failing and tries
// it again after a cool-down.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	openUntil   time.Time
	trials      int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{config: config.withDefaults()}
}

// Execute runs op unless the circuit rejects it with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current state. An open circuit whose window has ended
// reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refresh(cb.config.Now())
}

// RetryAfter returns how long an open circuit keeps rejecting requests.
// It is zero unless the circuit is open.
func (cb *CircuitBreaker) RetryAfter() time.Duration {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Now()
	if cb.refresh(now) != StateOpen {
		return 0
	}
	return cb.openUntil.Sub(now)
}

// Metrics returns a snapshot of the breaker.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:       cb.refresh(cb.config.Now()),
		Failures:    cb.failures,
		Successes:   cb.successes,
		LastFailure: cb.lastFailure,
	}
}

// Reset closes the circuit and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.moveTo(StateClosed, time.Time{})
	cb.failures = 0
	cb.successes = 0
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refresh(cb.config.Now()) {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trials >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.config.Now()
	if !cb.config.IsFailure(err) {
		cb.successes++
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.moveTo(StateClosed, now)
		}
		return
	}

	cb.failures++
	cb.lastFailure = now
	switch {
	case cb.state == StateHalfOpen:
		cb.moveTo(StateOpen, now)
	case cb.state == StateClosed && cb.failures >= cb.config.MaxFailures:
		cb.moveTo(StateOpen, now)
	}
}

// refresh moves an expired open circuit to half-open and returns the
// state. cb.mu must be held.
func (cb *CircuitBreaker) refresh(now time.Time) State {
	if cb.state == StateOpen && !now.Before(cb.openUntil) {
		cb.moveTo(StateHalfOpen, now)
	}
	return cb.state
}

// moveTo changes state and notifies the observer. cb.mu must be held.
func (cb *CircuitBreaker) moveTo(to State, now time.Time) {
	from := cb.state
	cb.state = to
	cb.trials = 0
	if to == StateOpen {
		cb.openUntil = now.Add(cb.config.ResetTimeout)
	}
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// CircuitRegistry holds one breaker per endpoint group, created lazily from
// a shared configuration.
type CircuitRegistry struct {
	config CircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitRegistry returns an empty registry.
func NewCircuitRegistry(config CircuitBreakerConfig) *CircuitRegistry {
	return &CircuitRegistry{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Breaker returns the breaker for key, creating it on first use.
func (r *CircuitRegistry) Breaker(key string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[key]
	if !ok {
		cb = NewCircuitBreaker(r.config)
		r.breakers[key] = cb
	}
	return cb
}

// Execute runs op through the breaker for key.
func (r *CircuitRegistry) Execute(ctx context.Context, key string, op func(context.Context) error) error {
	return r.Breaker(key).Execute(ctx, op)
}

// Status returns the metrics of the breaker for key. ok is false when no
// request has gone through that group yet.
func (r *CircuitRegistry) Status(key string) (metrics CircuitBreakerMetrics, ok bool) {
	r.mu.Lock()
	cb, ok := r.breakers[key]
	r.mu.Unlock()

	if !ok {
		return CircuitBreakerMetrics{State: StateClosed}, false
	}
	return cb.Metrics(), true
}

// OpenCircuits lists the groups whose breaker is open, sorted.
func (r *CircuitRegistry) OpenCircuits() []string {
	r.mu.Lock()
	keys := slices.Sorted(maps.Keys(r.breakers))
	snapshot := make([]*CircuitBreaker, len(keys))
	for i, k := range keys {
		snapshot[i] = r.breakers[k]
	}
	r.mu.Unlock()

	var open []string
	for i, cb := range snapshot {
		if cb.State() == StateOpen {
			open = append(open, keys[i])
		}
	}
	return open
}

// Reset drops every breaker, closing all circuits.
func (r *CircuitRegistry) Reset() {
	r.mu.Lock()
	clear(r.breakers)
	r.mu.Unlock()
}
