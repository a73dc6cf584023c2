package worker

import "errors"

// Sentinel errors for worker operations.
var (
	ErrCacheNotFound     = errors.New("worker: cache not found")
	ErrInvalidTransition = errors.New("worker: invalid state transition")
	ErrOffline           = errors.New("worker: network unavailable and nothing cached")
	ErrUnknownMessage    = errors.New("worker: unknown message type")
	ErrInvalidScope      = errors.New("worker: script is outside its scope")
	ErrWorkerStopped     = errors.New("worker: stopped before activation")
)
