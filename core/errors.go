package core

import "errors"

var (
	// ErrPoolShutdown is returned when work is submitted to a pool that is shutting down.
	ErrPoolShutdown = errors.New("thread pool is shut down")

	// ErrRunnerClosed is returned by runner operations after Shutdown or Stop.
	ErrRunnerClosed = errors.New("runner is closed")

	// ErrInvalidPoolSize is returned for a pool config with a non-positive or inverted size.
	ErrInvalidPoolSize = errors.New("invalid pool size")
)
