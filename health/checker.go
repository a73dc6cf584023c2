package health

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component works but is slow.
	StatusDegraded
	// StatusUnhealthy indicates the component is unreachable.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worse returns the more severe of s and other.
func (s Status) Worse(other Status) Status {
	if other > s {
		return other
	}
	return s
}

// Result contains the outcome of a health check.
type Result struct {
	Status    Status
	Message   string
	Details   map[string]any
	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

type checkerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc wraps fn as a Checker.
func NewCheckerFunc(name string, fn func(context.Context) Result) Checker {
	return &checkerFunc{name: name, fn: fn}
}

func (f *checkerFunc) Name() string                     { return f.name }
func (f *checkerFunc) Check(ctx context.Context) Result { return f.fn(ctx) }

// Pinger is anything that can verify its own connectivity.
// cache.RedisCache satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingChecker reports Unhealthy when Ping fails and Degraded when it takes
// longer than the slow threshold.
type PingChecker struct {
	name   string
	pinger Pinger
	slow   time.Duration
	now    func() time.Time
}

// NewPingChecker creates a checker around p. A zero slow threshold disables
// the degraded state.
func NewPingChecker(name string, p Pinger, slow time.Duration) *PingChecker {
	return &PingChecker{name: name, pinger: p, slow: slow, now: time.Now}
}

// Name returns the checker name.
func (c *PingChecker) Name() string { return c.name }

// Check pings the component.
func (c *PingChecker) Check(ctx context.Context) Result {
	start := c.now()
	err := c.pinger.Ping(ctx)
	elapsed := c.now().Sub(start)

	if err != nil {
		return Unhealthy(c.name+" unreachable", err)
	}
	if c.slow > 0 && elapsed > c.slow {
		return Degraded(c.name + " responding slowly").WithDetails(map[string]any{
			"latency":   elapsed.String(),
			"threshold": c.slow.String(),
		})
	}
	return Healthy(c.name + " reachable")
}
