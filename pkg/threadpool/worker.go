package threadpool

import "sync/atomic"

// WorkerState is a worker's position in its looper:
// Fetching → {Processing → Fetching} | {Waiting → Fetching} | Exited.
type WorkerState int32

const (
	WorkerFetching WorkerState = iota
	WorkerProcessing
	WorkerWaiting
	WorkerExited
)

func (s WorkerState) String() string {
	switch s {
	case WorkerFetching:
		return "fetching"
	case WorkerProcessing:
		return "processing"
	case WorkerWaiting:
		return "waiting"
	case WorkerExited:
		return "exited"
	default:
		return "unknown"
	}
}

// callerWorkerID identifies the goroutine that called RunPending in observer callbacks
const callerWorkerID = -1

type worker struct {
	id    int
	state atomic.Int32
}

func (w *worker) setState(s WorkerState) {
	w.state.Store(int32(s))
}

func (w *worker) getState() WorkerState {
	return WorkerState(w.state.Load())
}
