package health

import "errors"

var (
	// ErrCheckTimeout indicates a health check did not finish in time.
	ErrCheckTimeout = errors.New("health: check timeout")

	// ErrCheckerNotFound indicates a checker was not registered.
	ErrCheckerNotFound = errors.New("health: checker not found")

	// ErrOriginStatus indicates the origin answered with a server error.
	ErrOriginStatus = errors.New("health: origin returned server error")
)
