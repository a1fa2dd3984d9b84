package channel

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/OCAP2/twoway/internal/queue"
)

// link is the state shared by every holder of either half.
type link[T any] struct {
	q         *queue.Queue[T]
	senders   atomic.Int64
	receivers atomic.Int64
}

// retain adds a holder unless the count already reached zero.
func retain(count *atomic.Int64) bool {
	for {
		n := count.Load()
		if n <= 0 {
			return false
		}
		if count.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// UnboundedSender is the send half of an unbounded channel.
type UnboundedSender[T any] struct {
	link   *link[T]
	closed atomic.Bool
}

// UnboundedReceiver is the receive half of an unbounded channel.
type UnboundedReceiver[T any] struct {
	link   *link[T]
	closed atomic.Bool
}

// NewUnbounded creates an unbounded channel with one holder on each half.
func NewUnbounded[T any]() (*UnboundedSender[T], *UnboundedReceiver[T]) {
	l := &link[T]{q: queue.New[T]()}
	l.senders.Store(1)
	l.receivers.Store(1)
	return &UnboundedSender[T]{link: l}, &UnboundedReceiver[T]{link: l}
}

// Send enqueues v. It fails with ErrDisconnected once every receiver holder
// has been closed, in which case v was not enqueued.
func (s *UnboundedSender[T]) Send(v T) error {
	if s.closed.Load() {
		return ErrHandleClosed
	}
	if err := s.link.q.Push(v); err != nil {
		if s.closed.Load() {
			return ErrHandleClosed
		}
		if errors.Is(err, queue.ErrClosed) {
			return ErrDisconnected
		}
		return err
	}
	return nil
}

// Clone returns another holder of the send half.
func (s *UnboundedSender[T]) Clone() (*UnboundedSender[T], error) {
	if s.closed.Load() || !retain(&s.link.senders) {
		return nil, ErrHandleClosed
	}
	return &UnboundedSender[T]{link: s.link}, nil
}

// Close drops this holder. When the last sender is dropped, receivers drain
// what is buffered and then get ErrDisconnected.
func (s *UnboundedSender[T]) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if s.link.senders.Add(-1) == 0 {
		s.link.q.Close()
	}
}

// Recv blocks until a value is available or every sender is gone.
func (r *UnboundedReceiver[T]) Recv() (T, error) {
	return r.RecvContext(context.Background())
}

// RecvContext is Recv that also returns ctx.Err() when ctx ends first.
func (r *UnboundedReceiver[T]) RecvContext(ctx context.Context) (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, ErrHandleClosed
	}
	v, err := r.link.q.Wait(ctx)
	if err != nil {
		if errors.Is(err, queue.ErrClosed) {
			return zero, ErrDisconnected
		}
		return zero, err
	}
	return v, nil
}

// TryRecv returns the next buffered value without blocking.
func (r *UnboundedReceiver[T]) TryRecv() (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, ErrHandleClosed
	}
	if v, ok := r.link.q.Pop(); ok {
		return v, nil
	}
	if r.link.q.Closed() {
		// a value may have been pushed just before the last sender left
		if v, ok := r.link.q.Pop(); ok {
			return v, nil
		}
		return zero, ErrDisconnected
	}
	return zero, ErrEmpty
}

// Len returns the number of buffered values.
func (r *UnboundedReceiver[T]) Len() int {
	return r.link.q.Len()
}

// Clone returns another holder of the receive half.
func (r *UnboundedReceiver[T]) Clone() (*UnboundedReceiver[T], error) {
	if r.closed.Load() || !retain(&r.link.receivers) {
		return nil, ErrHandleClosed
	}
	return &UnboundedReceiver[T]{link: r.link}, nil
}

// Close drops this holder. When the last receiver is dropped, buffered values
// are discarded and senders get ErrDisconnected.
func (r *UnboundedReceiver[T]) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	if r.link.receivers.Add(-1) == 0 {
		r.link.q.Close()
		r.link.q.Clear()
	}
}
