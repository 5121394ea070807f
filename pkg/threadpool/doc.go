// Package threadpool provides a fixed-size worker pool with a blocking
// "wait for everything submitted so far" operation.
//
// A pool runs one handler over items of a single type:
//
//	pool, err := threadpool.New(func(path string) {
//		index(path)
//	}, threadpool.WithConcurrency(4))
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	for _, path := range paths {
//		pool.Submit(path)
//	}
//	pool.WaitForAll()
//
// NewFunc builds a pool whose items are funcs that are simply called.
//
// Workers share an unbounded FIFO. Submit never blocks for capacity and may be
// called from a handler. WaitForAll returns once the queue is empty and no
// worker is claiming or running an item. Close lets the workers drain the
// queue, including items that handlers submit meanwhile, and returns after all
// of them exit. Submit fails once Close has returned.
//
// A panic escaping a handler is fatal to the process unless WithPanicHandler
// is set, in which case it is recovered and the worker carries on.
package threadpool
