package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Push after Close, and by Wait once a closed queue is drained.
var ErrClosed = errors.New("queue closed")

// Queue is a generic thread-safe unbounded FIFO.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool

	// ready holds a token while items may be available to a waiter
	ready chan struct{}
	// done is closed by Close
	done chan struct{}
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push appends items to the queue.
func (q *Queue[T]) Push(items ...T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	if len(items) == 0 {
		return nil
	}
	q.items = append(q.items, items...)
	q.signal()
	return nil
}

// Pop removes and returns the first item. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

// Wait removes and returns the first item, blocking until one is pushed.
// It returns ErrClosed when the queue is closed and empty, or ctx.Err()
// when ctx ends first.
func (q *Queue[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if item, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		q.mu.Unlock()

		select {
		case <-q.ready:
		case <-q.done:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close stops the queue from accepting items. Buffered items can still be
// popped. Close is safe to call more than once.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Closed returns true once Close has been called.
func (q *Queue[T]) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items from the queue.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	clear(q.items)
	q.items = q.items[:0]
}

func (q *Queue[T]) popLocked() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	// pass the wakeup on so a second waiter does not sleep on a non-empty queue
	if len(q.items) > 0 {
		q.signal()
	}
	return item, true
}

// signal must be called with mu held.
func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
