package resilience

import "errors"

// Errors returned instead of running an operation.
var (
	ErrCircuitOpen       = errors.New("resilience: circuit open, request rejected")
	ErrRateLimitExceeded = errors.New("resilience: rate limit reached")
	ErrBulkheadFull      = errors.New("resilience: no free slot in bulkhead")
	ErrTimeout           = errors.New("resilience: attempt deadline exceeded")
)
