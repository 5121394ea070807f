package threadpool

import "errors"

var (
	// ErrNilHandler is returned when a pool is constructed without a handler
	ErrNilHandler = errors.New("threadpool: handler cannot be nil")

	// ErrInvalidConcurrency is returned for a negative worker count
	ErrInvalidConcurrency = errors.New("threadpool: concurrency cannot be negative")

	// ErrPoolClosed is returned by Submit once Close has returned
	ErrPoolClosed = errors.New("threadpool: pool is closed")
)
