package threadpool

import "time"

// Observer receives pool events. Implementations must be safe for
// concurrent use and must not call back into the pool's blocking
// operations (WaitForAll, Close).
type Observer interface {
	// ItemSubmitted is called after an item has been queued
	ItemSubmitted(queued int)

	// ItemStarted is called on the worker right before the handler runs
	ItemStarted(worker int)

	// ItemFinished is called after the handler returned or its panic was handled
	ItemFinished(worker int, elapsed time.Duration, panicked bool)

	// BusyChanged reports the busy count after every change. Calls from
	// different workers are not ordered, so the last call seen need not
	// carry the current count; read Pool.Stats for that.
	BusyChanged(busy int64)

	// WorkerExited is called once per worker when it terminates
	WorkerExited(worker int)
}

type nopObserver struct{}

func (nopObserver) ItemSubmitted(int) {}
func (nopObserver) ItemStarted(int) {}
func (nopObserver) ItemFinished(int, time.Duration, bool) {}
func (nopObserver) BusyChanged(int64) {}
func (nopObserver) WorkerExited(int) {}
