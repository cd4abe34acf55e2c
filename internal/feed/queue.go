package feed

import (
	"sync"
)

// Queue is a thread-safe FIFO ring that doubles its capacity when full.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []T
	head   int // Next item to pop
	count  int
	limit  int // Maximum length, 0 = unbounded
	closed bool

	// Stats
	pushed  int64
	popped  int64
	dropped int64
	grows   int
}

// Stats contains queue statistics.
type Stats struct {
	Len      int
	Capacity int
	Pushed   int64
	Popped   int64
	Dropped  int64 // Oldest entries discarded at the limit
	Grows    int
}

// NewQueue creates a queue with the given initial capacity. A positive limit
// caps its length; pushing onto a full queue then evicts the oldest item.
func NewQueue[T any](initialCapacity, limit int) *Queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if limit > 0 && initialCapacity > limit {
		initialCapacity = limit
	}
	q := &Queue[T]{
		buf:   make([]T, initialCapacity),
		limit: limit,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends item. It never blocks. Returns false if the queue is closed.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if q.count == len(q.buf) {
		if q.limit > 0 && q.count >= q.limit {
			q.popLocked()
			q.popped--
			q.dropped++
		} else {
			q.grow()
		}
	}

	q.buf[(q.head+q.count)%len(q.buf)] = item
	q.count++
	q.pushed++

	q.cond.Signal()
	return true
}

// Pop removes and returns the oldest item, blocking until one is available.
// It returns false once the queue is closed and drained.
func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.count == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// TryPop is Pop without blocking.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.popLocked(), true
}

// Drain removes up to max items (all when max <= 0) without blocking.
func (q *Queue[T]) Drain(max int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := q.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = q.popLocked()
	}
	return out
}

// Close stops accepting items and wakes blocked Pop calls. Items already
// queued can still be popped.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Stats returns queue statistics.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Len:      q.count,
		Capacity: len(q.buf),
		Pushed:   q.pushed,
		Popped:   q.popped,
		Dropped:  q.dropped,
		Grows:    q.grows,
	}
}

// popLocked removes the head item. Must be called with lock held and
// count > 0.
func (q *Queue[T]) popLocked() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // Clear reference for GC
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.popped++
	return item
}

// grow doubles the capacity, bounded by limit. Must be called with lock held.
func (q *Queue[T]) grow() {
	size := len(q.buf) * 2
	if q.limit > 0 && size > q.limit {
		size = q.limit
	}
	buf := make([]T, size)

	// Unwrap: [head...end) + [0...rest)
	n := copy(buf, q.buf[q.head:])
	if n < q.count {
		copy(buf[n:], q.buf[:q.count-n])
	}

	q.buf = buf
	q.head = 0
	q.grows++
}
