package resilience

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrorsAreDistinct(t *testing.T) {
	all := []error{ErrCircuitOpen, ErrRateLimitExceeded, ErrBulkheadFull, ErrTimeout}
	for i, a := range all {
		wrapped := fmt.Errorf("GET /cases: %w", a)
		for j, b := range all {
			if got := errors.Is(wrapped, b); got != (i == j) {
				t.Errorf("errors.Is(%v, %v) = %v", wrapped, b, got)
			}
		}
	}
}
