package threadpool

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fluxorio/threadpool/pkg/core"
	"github.com/fluxorio/threadpool/pkg/core/failfast"
)

// recordingObserver checks pool invariants from the observer callbacks
type recordingObserver struct {
	submitted atomic.Int64
	started   atomic.Int64
	finished  atomic.Int64
	panicked  atomic.Int64
	exited    atomic.Int64
	minBusy   atomic.Int64
	maxBusy   atomic.Int64
}

func (o *recordingObserver) ItemSubmitted(int) { o.submitted.Add(1) }
func (o *recordingObserver) ItemStarted(int)   { o.started.Add(1) }
func (o *recordingObserver) WorkerExited(int)  { o.exited.Add(1) }
func (o *recordingObserver) ItemFinished(_ int, _ time.Duration, panicked bool) {
	o.finished.Add(1)
	if panicked {
		o.panicked.Add(1)
	}
}

func (o *recordingObserver) BusyChanged(busy int64) {
	for {
		cur := o.minBusy.Load()
		if busy >= cur || o.minBusy.CompareAndSwap(cur, busy) {
			break
		}
	}
	for {
		cur := o.maxBusy.Load()
		if busy <= cur || o.maxBusy.CompareAndSwap(cur, busy) {
			break
		}
	}
}

func newTestPool[T any](t *testing.T, handler func(T), opts ...Option) *Pool[T] {
	t.Helper()
	opts = append([]Option{WithLogger(core.NewNopLogger())}, opts...)
	pool, err := New(handler, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func TestNew_NilHandler(t *testing.T) {
	pool, err := New[int](nil)
	if !errors.Is(err, ErrNilHandler) {
		t.Errorf("New(nil) error = %v, want ErrNilHandler", err)
	}
	if pool != nil {
		t.Error("New(nil) should not return a pool")
	}
}

func TestNew_NegativeConcurrency(t *testing.T) {
	_, err := New(func(int) {}, WithConcurrency(-1), WithLogger(core.NewNopLogger()))
	if !errors.Is(err, ErrInvalidConcurrency) {
		t.Errorf("New() error = %v, want ErrInvalidConcurrency", err)
	}
}

func TestNew_DefaultConcurrency(t *testing.T) {
	pool := newTestPool(t, func(int) {})

	if pool.Concurrency() != runtime.NumCPU() {
		t.Errorf("Concurrency() = %d, want %d", pool.Concurrency(), runtime.NumCPU())
	}
	if pool.Name() != "threadpool" {
		t.Errorf("Name() = %q, want threadpool", pool.Name())
	}
	if pool.ID() == "" {
		t.Error("ID() should not be empty")
	}
}

func TestPool_Counter(t *testing.T) {
	var counter atomic.Int64
	pool := newTestPool(t, func(int) {
		counter.Add(1)
	}, WithConcurrency(2))

	for i := 0; i < 100; i++ {
		if err := pool.Submit(i); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.WaitForAll()

	if got := counter.Load(); got != 100 {
		t.Errorf("counter = %d, want 100", got)
	}
}

func TestPool_ExactlyOnce(t *testing.T) {
	const n = 10000
	seen := make([]atomic.Int32, n)
	pool := newTestPool(t, func(i int) {
		seen[i].Add(1)
	}, WithConcurrency(8))

	for i := 0; i < n; i++ {
		pool.Submit(i)
	}
	pool.WaitForAll()

	for i := range seen {
		if got := seen[i].Load(); got != 1 {
			t.Fatalf("item %d handled %d times, want 1", i, got)
		}
	}
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	const submitters, perSubmitter = 8, 10000
	var handled atomic.Int64
	pool := newTestPool(t, func(int) {
		handled.Add(1)
	}, WithConcurrency(4))

	var g errgroup.Group
	for s := 0; s < submitters; s++ {
		g.Go(func() error {
			for i := 0; i < perSubmitter; i++ {
				if err := pool.Submit(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	pool.WaitForAll()

	if got := handled.Load(); got != submitters*perSubmitter {
		t.Errorf("handled = %d, want %d", got, submitters*perSubmitter)
	}
}

func TestPool_RunsInParallel(t *testing.T) {
	const sleep = 25 * time.Millisecond
	pool := newTestPool(t, func(int) {
		time.Sleep(sleep)
	}, WithConcurrency(2))

	start := time.Now()
	for i := 0; i < 4; i++ {
		pool.Submit(i)
	}
	pool.WaitForAll()
	elapsed := time.Since(start)

	if elapsed < 2*sleep {
		t.Errorf("WaitForAll() returned after %v, before two rounds of %v", elapsed, sleep)
	}
	// Serial execution would take 4*sleep.
	if elapsed >= 4*sleep {
		t.Errorf("WaitForAll() took %v, want close to %v", elapsed, 2*sleep)
	}
}

func TestPool_WaitForAllNotPremature(t *testing.T) {
	var inFlight, done atomic.Int64
	pool := newTestPool(t, func(d time.Duration) {
		inFlight.Add(1)
		time.Sleep(d)
		done.Add(1)
		inFlight.Add(-1)
	}, WithConcurrency(3))

	total := int64(0)
	for round := 0; round < 20; round++ {
		for i := 0; i < 7; i++ {
			pool.Submit(time.Duration(i%3) * time.Millisecond)
			total++
		}
		pool.WaitForAll()

		if n := inFlight.Load(); n != 0 {
			t.Fatalf("round %d: WaitForAll() returned with %d handlers running", round, n)
		}
		if n := done.Load(); n != total {
			t.Fatalf("round %d: done = %d, want %d", round, n, total)
		}
		if q := pool.Stats().Queued; q != 0 {
			t.Fatalf("round %d: WaitForAll() returned with %d queued", round, q)
		}
	}
}

func TestPool_WaitForAllIdle(t *testing.T) {
	pool := newTestPool(t, func(int) {}, WithConcurrency(2))

	returned := make(chan struct{})
	go func() {
		pool.WaitForAll()
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("WaitForAll() on an idle pool did not return")
	}
}

func TestPool_MultipleWaiters(t *testing.T) {
	var handled atomic.Int64
	pool := newTestPool(t, func(int) {
		time.Sleep(time.Millisecond)
		handled.Add(1)
	}, WithConcurrency(2))

	for i := 0; i < 50; i++ {
		pool.Submit(i)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.WaitForAll()
			if got := handled.Load(); got != 50 {
				t.Errorf("waiter saw handled = %d, want 50", got)
			}
		}()
	}
	wg.Wait()
}

func TestPool_BusyNeverNegative(t *testing.T) {
	obs := &recordingObserver{}
	pool := newTestPool(t, func(int) {}, WithConcurrency(4), WithObserver(obs))

	for round := 0; round < 10; round++ {
		for i := 0; i < 1000; i++ {
			pool.Submit(i)
		}
		pool.WaitForAll()
	}
	pool.Close()

	if lo := obs.minBusy.Load(); lo < 0 {
		t.Errorf("busy count observed at %d", lo)
	}
	if hi := obs.maxBusy.Load(); hi > 4 {
		t.Errorf("busy count observed at %d with 4 workers", hi)
	}
	if got := obs.finished.Load(); got != 10000 {
		t.Errorf("finished = %d, want 10000", got)
	}
	if got := obs.exited.Load(); got != 4 {
		t.Errorf("exited = %d, want 4", got)
	}
}

func TestPool_CloseDrainsQueue(t *testing.T) {
	release := make(chan struct{})
	var handled atomic.Int64

	pool, err := New(func(int) {
		<-release
		handled.Add(1)
	}, WithConcurrency(2), WithLogger(core.NewNopLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const n = 200
	for i := 0; i < n; i++ {
		pool.Submit(i)
	}

	closed := make(chan struct{})
	go func() {
		pool.Close()
		close(closed)
	}()

	// Close must not finish while items are still queued.
	select {
	case <-closed:
		t.Fatal("Close() returned while handlers were blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-closed

	if got := handled.Load(); got != n {
		t.Errorf("handled = %d after Close(), want %d", got, n)
	}
	stats := pool.Stats()
	if stats.Exited != 2 {
		t.Errorf("Stats().Exited = %d, want 2", stats.Exited)
	}
	if stats.Queued != 0 {
		t.Errorf("Stats().Queued = %d, want 0", stats.Queued)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	pool := newTestPool(t, func(int) {}, WithConcurrency(1))
	pool.Close()

	if err := pool.Submit(1); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Close() error = %v, want ErrPoolClosed", err)
	}

	// Second Close is a no-op
	pool.Close()
}

func TestPool_HandlerSubmitDuringClose(t *testing.T) {
	started := make(chan struct{}, 1)
	var handled, rejected atomic.Int64
	var pool *Pool[int]

	pool = newTestPool(t, func(level int) {
		handled.Add(1)
		if level == 0 {
			return
		}
		select {
		case started <- struct{}{}:
		default:
		}
		// Give Close time to start before the child is submitted
		time.Sleep(20 * time.Millisecond)
		if err := pool.Submit(level - 1); err != nil {
			rejected.Add(1)
		}
	}, WithConcurrency(1))

	pool.Submit(3)
	<-started
	pool.Close()

	if got := rejected.Load(); got != 0 {
		t.Errorf("rejected = %d, want 0", got)
	}
	if got := handled.Load(); got != 4 {
		t.Errorf("handled = %d after Close(), want 4", got)
	}
	if err := pool.Submit(9); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit() after Close() error = %v, want ErrPoolClosed", err)
	}
}

func TestPool_CloseDrainsTree(t *testing.T) {
	const depth = 6
	var handled, rejected atomic.Int64
	var pool *Pool[int]

	pool = newTestPool(t, func(level int) {
		handled.Add(1)
		if level == 0 {
			return
		}
		for i := 0; i < 2; i++ {
			if err := pool.Submit(level - 1); err != nil {
				rejected.Add(1)
			}
		}
	}, WithConcurrency(4))

	pool.Submit(depth)
	pool.Close()

	if got := rejected.Load(); got != 0 {
		t.Errorf("rejected = %d, want 0", got)
	}
	if got, want := handled.Load(), int64(1<<(depth+1)-1); got != want {
		t.Errorf("handled = %d after Close(), want %d", got, want)
	}
	if got := pool.Stats().Exited; got != 4 {
		t.Errorf("Stats().Exited = %d, want 4", got)
	}
}

func TestPool_RecursiveSubmit(t *testing.T) {
	const depth = 10
	var handled atomic.Int64
	var pool *Pool[int]

	pool = newTestPool(t, func(level int) {
		handled.Add(1)
		if level == 0 {
			return
		}
		for i := 0; i < 2; i++ {
			if err := pool.Submit(level - 1); err != nil {
				t.Errorf("Submit() from handler error = %v", err)
			}
		}
	}, WithConcurrency(2))

	done := make(chan struct{})
	go func() {
		pool.Submit(depth)
		pool.WaitForAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("recursive submit deadlocked")
	}

	want := int64(1<<(depth+1) - 1)
	if got := handled.Load(); got != want {
		t.Errorf("handled = %d, want %d", got, want)
	}
}

func TestPool_ZeroConcurrency(t *testing.T) {
	var handled atomic.Int64
	pool := newTestPool(t, func(int) {
		handled.Add(1)
	}, WithConcurrency(0))

	if pool.Concurrency() != 0 {
		t.Fatalf("Concurrency() = %d, want 0", pool.Concurrency())
	}

	pool.Submit(1)
	pool.Submit(2)
	time.Sleep(10 * time.Millisecond)
	if got := pool.Stats().Queued; got != 2 {
		t.Errorf("Stats().Queued = %d, want 2 with no workers", got)
	}

	// The caller can still drain the queue itself.
	if n := pool.RunPending(); n != 2 {
		t.Errorf("RunPending() = %d, want 2", n)
	}
	pool.WaitForAll()

	if got := handled.Load(); got != 2 {
		t.Errorf("handled = %d, want 2", got)
	}
}

func TestPool_RunPendingWithWorkers(t *testing.T) {
	var handled atomic.Int64
	pool := newTestPool(t, func(int) {
		handled.Add(1)
	}, WithConcurrency(2))

	for i := 0; i < 500; i++ {
		pool.Submit(i)
	}
	ran := pool.RunPending()
	pool.WaitForAll()

	if ran < 0 || ran > 500 {
		t.Errorf("RunPending() = %d, want 0..500", ran)
	}
	if got := handled.Load(); got != 500 {
		t.Errorf("handled = %d, want 500", got)
	}
}

func TestNewFunc(t *testing.T) {
	pool, err := NewFunc(WithConcurrency(3), WithLogger(core.NewNopLogger()))
	if err != nil {
		t.Fatalf("NewFunc() error = %v", err)
	}
	defer pool.Close()

	var mu sync.Mutex
	got := make(map[int]bool)
	for i := 0; i < 20; i++ {
		i := i
		pool.Submit(func() {
			mu.Lock()
			got[i] = true
			mu.Unlock()
		})
	}
	pool.WaitForAll()

	if len(got) != 20 {
		t.Errorf("ran %d funcs, want 20", len(got))
	}
}

func TestPool_PanicHandler(t *testing.T) {
	obs := &recordingObserver{}
	var mu sync.Mutex
	var caught []*failfast.PanicError
	var handled atomic.Int64

	pool := newTestPool(t, func(i int) {
		if i%10 == 3 {
			panic("bad item")
		}
		handled.Add(1)
	}, WithConcurrency(2), WithObserver(obs), WithPanicHandler(func(worker int, err *failfast.PanicError) {
		mu.Lock()
		caught = append(caught, err)
		mu.Unlock()
	}))

	for i := 0; i < 100; i++ {
		pool.Submit(i)
	}
	pool.WaitForAll()

	if got := handled.Load(); got != 90 {
		t.Errorf("handled = %d, want 90", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(caught) != 10 {
		t.Fatalf("caught %d panics, want 10", len(caught))
	}
	if caught[0].Value != "bad item" {
		t.Errorf("PanicError.Value = %v, want bad item", caught[0].Value)
	}
	if !strings.Contains(caught[0].Where, "worker") {
		t.Errorf("PanicError.Where = %q, want worker id", caught[0].Where)
	}
	if got := obs.panicked.Load(); got != 10 {
		t.Errorf("observer panicked = %d, want 10", got)
	}
	// Workers survived: the pool keeps full concurrency.
	if stats := pool.Stats(); stats.Exited != 0 || stats.Busy != 0 {
		t.Errorf("Stats() = %+v, want no exited workers and zero busy", stats)
	}
}

func TestPool_HandlerPanicIsFatal(t *testing.T) {
	if os.Getenv("THREADPOOL_TEST_CRASH") == "1" {
		pool, _ := New(func(int) {
			panic("boom")
		}, WithConcurrency(1), WithLogger(core.NewNopLogger()))
		pool.Submit(1)
		pool.WaitForAll()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestPool_HandlerPanicIsFatal$")
	cmd.Env = append(os.Environ(), "THREADPOOL_TEST_CRASH=1")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("child exited with %v, want a crash", err)
	}
	if !strings.Contains(stderr.String(), "panic: boom") {
		t.Errorf("child stderr = %q, want the handler panic", stderr.String())
	}
}

func TestPool_LockOSThread(t *testing.T) {
	var handled atomic.Int64
	pool := newTestPool(t, func(int) {
		handled.Add(1)
	}, WithConcurrency(2), WithLockOSThread())

	for i := 0; i < 10; i++ {
		pool.Submit(i)
	}
	pool.WaitForAll()

	if got := handled.Load(); got != 10 {
		t.Errorf("handled = %d, want 10", got)
	}
}

func TestPool_Stats(t *testing.T) {
	release := make(chan struct{})
	pool := newTestPool(t, func(int) {
		<-release
	}, WithConcurrency(2), WithName("stats"))

	for i := 0; i < 5; i++ {
		pool.Submit(i)
	}

	deadline := time.Now().Add(time.Second)
	for pool.Stats().Processing != 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	stats := pool.Stats()
	if stats.Name != "stats" {
		t.Errorf("Stats().Name = %q, want stats", stats.Name)
	}
	if stats.Processing != 2 {
		t.Errorf("Stats().Processing = %d, want 2", stats.Processing)
	}
	if stats.Busy != 2 {
		t.Errorf("Stats().Busy = %d, want 2", stats.Busy)
	}
	if stats.Queued != 3 {
		t.Errorf("Stats().Queued = %d, want 3", stats.Queued)
	}
	if stats.Submitted != 5 {
		t.Errorf("Stats().Submitted = %d, want 5", stats.Submitted)
	}

	close(release)
	pool.WaitForAll()

	stats = pool.Stats()
	if stats.Completed != 5 {
		t.Errorf("Stats().Completed = %d, want 5", stats.Completed)
	}
}

func TestWorkerState_String(t *testing.T) {
	tests := map[WorkerState]string{
		WorkerFetching:   "fetching",
		WorkerProcessing: "processing",
		WorkerWaiting:    "waiting",
		WorkerExited:     "exited",
		WorkerState(99):  "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("WorkerState(%d).String() = %q, want %q", state, got, want)
		}
	}
}
