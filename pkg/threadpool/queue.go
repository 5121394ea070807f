package threadpool

import "sync"

// queue is an unbounded FIFO guarded by its own lock.
// It never blocks; waiting for items is the looper's job.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
}

func (q *queue[T]) enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// dequeue removes the head item. ok is false when the queue is empty.
func (q *queue[T]) dequeue() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == len(q.items) {
		return item, false
	}

	var zero T
	item = q.items[q.head]
	q.items[q.head] = zero // drop the reference, the worker owns it now
	q.head++

	switch {
	case q.head == len(q.items):
		// Drained: reuse the backing array from the start.
		q.items = q.items[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 >= len(q.items):
		// More dead slots than live ones, compact.
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return item, true
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *queue[T]) isEmpty() bool {
	return q.len() == 0
}
