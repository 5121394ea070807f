package threadpool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/fluxorio/threadpool/pkg/core"
)

// Pool runs a single handler over submitted items on a fixed set of workers.
//
// A Pool must be closed with Close. It must not be copied after construction.
type Pool[T any] struct {
	id      uuid.UUID
	opts    options
	log     core.Logger
	handler func(item T)

	queue queue[T]

	// mu guards the two conditions below. It is never held while a handler runs.
	mu            sync.Mutex
	workAvailable *sync.Cond
	workDone      *sync.Cond

	busy atomic.Int64
	exit atomic.Bool

	// gate orders Submit's enqueue against Close marking the pool closed
	gate   sync.RWMutex
	closed atomic.Bool

	workers []*worker
	caller  *worker
	exited  sync.WaitGroup // exit latch, one count per worker

	closeOnce sync.Once

	submitted atomic.Uint64
	completed atomic.Uint64
}

// Stats is a point-in-time snapshot of a pool
type Stats struct {
	ID          string
	Name        string
	Concurrency int    // Number of workers, fixed at construction
	Queued      int    // Items waiting in the queue
	Busy        int64  // Workers claiming or running an item
	Fetching    int    // Workers per state
	Processing  int
	Waiting     int
	Exited      int
	Submitted   uint64 // Total items accepted by Submit
	Completed   uint64 // Total handler invocations finished
}

// New creates a pool that calls handler once for every submitted item and
// starts its workers before returning.
func New[T any](handler func(item T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	n := o.workers()
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidConcurrency, n)
	}

	p := &Pool[T]{
		id:      uuid.New(),
		opts:    o,
		log:     o.logger,
		handler: handler,
		workers: make([]*worker, n),
		caller:  &worker{id: callerWorkerID},
	}
	if p.log == nil {
		p.log = core.NewLogger(core.LoggerConfig{Prefix: "threadpool[" + o.name + "] "})
	}
	p.workAvailable = sync.NewCond(&p.mu)
	p.workDone = sync.NewCond(&p.mu)

	if n == 0 {
		p.log.Warnf("pool %s created with zero workers: submitted items will never run", p.id)
	}

	for i := range p.workers {
		p.workers[i] = &worker{id: i}
	}
	p.exited.Add(n)
	for _, w := range p.workers {
		go p.run(w)
	}

	p.log.Infof("pool %s started with %d workers", p.id, n)
	return p, nil
}

// NewFunc creates a pool whose items are themselves the work: each submitted
// func is called once on a worker.
func NewFunc(opts ...Option) (*Pool[func()], error) {
	return New(func(work func()) {
		work()
	}, opts...)
}

// Submit queues item and wakes idle workers. It never blocks waiting for
// capacity and may be called from inside a handler, including while Close
// is draining the queue.
// It returns ErrPoolClosed once Close has returned.
func (p *Pool[T]) Submit(item T) error {
	p.gate.RLock()
	if p.closed.Load() {
		p.gate.RUnlock()
		return ErrPoolClosed
	}
	p.submitted.Add(1)
	p.queue.enqueue(item)
	p.gate.RUnlock()

	p.opts.observer.ItemSubmitted(p.queue.len())

	p.mu.Lock()
	p.workAvailable.Broadcast()
	p.mu.Unlock()
	return nil
}

// WaitForAll blocks until the queue is empty and no worker is claiming or
// running an item. Items submitted concurrently with the call may or may not
// be waited for.
//
// It must not be called from a handler, and with zero workers and a
// non-empty queue it never returns.
func (p *Pool[T]) WaitForAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		for !p.queue.isEmpty() {
			p.workDone.Wait()
		}
		for p.busy.Load() > 0 {
			p.workDone.Wait()
		}
		// Work may have been queued while we waited on busy.
		if p.queue.isEmpty() {
			return
		}
	}
}

// RunPending runs queued items on the calling goroutine until the queue is
// empty and returns how many it ran. Workers keep running concurrently.
func (p *Pool[T]) RunPending() int {
	n := 0
	for p.next(p.caller, false) == decisionProcessed {
		n++
	}
	return n
}

// Close stops the pool. Items already queued, and items that running
// handlers submit while the pool drains, are still run. Workers exit once
// the queue is empty and no handler is running, and Close returns after the
// last one has exited. Submit fails from then on.
// Close must not be called from a handler. Calling it again is a no-op.
func (p *Pool[T]) Close() {
	p.closeOnce.Do(func() {
		p.exit.Store(true)

		p.mu.Lock()
		p.workAvailable.Broadcast()
		p.mu.Unlock()

		p.exited.Wait()

		p.gate.Lock()
		p.closed.Store(true)
		p.gate.Unlock()

		if left := p.queue.len(); left > 0 {
			p.log.Warnf("pool %s closed with %d items that no worker could run", p.id, left)
		}
		p.log.Infof("pool %s stopped after %d items", p.id, p.completed.Load())
	})
}

// ID returns the pool's unique instance id
func (p *Pool[T]) ID() string {
	return p.id.String()
}

// Name returns the configured pool name
func (p *Pool[T]) Name() string {
	return p.opts.name
}

// Concurrency returns the number of workers
func (p *Pool[T]) Concurrency() int {
	return len(p.workers)
}

// Stats returns a snapshot of queue, busy and worker state
func (p *Pool[T]) Stats() Stats {
	s := Stats{
		ID:          p.id.String(),
		Name:        p.opts.name,
		Concurrency: len(p.workers),
		Queued:      p.queue.len(),
		Busy:        p.busy.Load(),
		Submitted:   p.submitted.Load(),
		Completed:   p.completed.Load(),
	}
	for _, w := range p.workers {
		switch w.getState() {
		case WorkerFetching:
			s.Fetching++
		case WorkerProcessing:
			s.Processing++
		case WorkerWaiting:
			s.Waiting++
		case WorkerExited:
			s.Exited++
		}
	}
	return s
}
