package threadpool

import (
	"fmt"
	"runtime"
	"time"

	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

// decision is the outcome of one looper iteration
type decision int

const (
	decisionProcessed decision = iota // ran one item
	decisionIdle                      // queue empty, non-blocking caller should stop
	decisionExit                      // exit flag set, queue drained, no handler running
)

// run is the body of a worker goroutine
func (p *Pool[T]) run(w *worker) {
	defer p.exited.Done()

	if p.opts.lockOSThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for p.next(w, true) != decisionExit {
	}

	w.setState(WorkerExited)
	p.opts.observer.WorkerExited(w.id)
	p.log.Debugf("worker %d exited", w.id)
}

// next fetches one item and runs it, waits for one when wait is set, or
// reports that the worker should exit.
func (p *Pool[T]) next(w *worker, wait bool) decision {
	for {
		w.setState(WorkerFetching)

		// Mark busy before looking at the queue. Otherwise WaitForAll could
		// see an empty queue and a zero busy count while this worker holds an
		// item it has not started yet.
		p.addBusy(1)
		if item, ok := p.queue.dequeue(); ok {
			p.process(w, item)
			return decisionProcessed
		}
		p.addBusy(-1)

		if !wait {
			// A WaitForAll caller may have parked on our transient busy mark.
			p.signalDone()
			return decisionIdle
		}

		p.mu.Lock()
		// Same as above, before sleeping.
		p.workDone.Broadcast()
		if p.exit.Load() {
			// Peers may have parked on our transient busy mark.
			p.workAvailable.Broadcast()

			// A handler enqueues before it stops counting as busy, so busy
			// is read first: zero busy followed by an empty queue means
			// nothing is left that could still submit.
			if p.busy.Load() == 0 && p.queue.isEmpty() {
				p.mu.Unlock()
				return decisionExit
			}
		}
		if p.queue.isEmpty() {
			w.setState(WorkerWaiting)
			p.workAvailable.Wait()
		}
		p.mu.Unlock()
	}
}

// process invokes the handler exactly once for item. A recovered panic is
// reported before the item counts as done, so WaitForAll cannot return
// ahead of a fatal abort or of the panic handler.
func (p *Pool[T]) process(w *worker, item T) {
	w.setState(WorkerProcessing)
	p.opts.observer.ItemStarted(w.id)
	start := time.Now()

	defer func() {
		r := recover()
		panicked := r != nil
		if panicked {
			p.handlePanic(w, r)
		}

		p.completed.Add(1)
		p.opts.observer.ItemFinished(w.id, time.Since(start), panicked)
		p.addBusy(-1)
		p.signalDone()
	}()

	p.handler(item)
}

// handlePanic returns only when a PanicHandler is installed
func (p *Pool[T]) handlePanic(w *worker, r interface{}) {
	where := fmt.Sprintf("threadpool[%s] worker %d", p.opts.name, w.id)
	pe := failfast.Capture(where, r)

	if p.opts.onPanic != nil {
		p.log.Warnf("worker %d: handler panic recovered: %v", w.id, pe.Value)
		p.opts.onPanic(w.id, pe)
		return
	}

	p.log.Errorf("worker %d: handler panicked, aborting: %v\n%s", w.id, pe.Value, pe.Stack)
	failfast.Fatal(where, pe)
}

func (p *Pool[T]) addBusy(delta int64) {
	n := p.busy.Add(delta)
	failfast.If(n >= 0, "threadpool[%s]: busy count went negative (%d)", p.opts.name, n)
	p.opts.observer.BusyChanged(n)
}

// signalDone wakes WaitForAll callers, and during Close the workers parked
// until no handler runs. Broadcasting under mu means a waiter is either
// before its predicate check or already parked in Wait.
func (p *Pool[T]) signalDone() {
	p.mu.Lock()
	p.workDone.Broadcast()
	if p.exit.Load() {
		p.workAvailable.Broadcast()
	}
	p.mu.Unlock()
}
