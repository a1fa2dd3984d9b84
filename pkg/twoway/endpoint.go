package twoway

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/OCAP2/twoway/internal/channel"
)

// Endpoint is a handle onto one side of a pair. It is safe for concurrent use.
type Endpoint[T any] struct {
	core    *core[T]
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

// core is the endpoint shared by all of its handles. It is the only owner of
// its two channel halves.
type core[T any] struct {
	sendMu   sync.Mutex
	outgoing channel.Sender[T]

	// recvSlot serializes receivers; a weighted semaphore lets a waiting
	// receiver give up when its context ends
	recvSlot *semaphore.Weighted
	incoming channel.Receiver[T]

	refs atomic.Int64

	pair    string
	side    string
	logger  Logger
	metrics *metrics
	attrs   metric.MeasurementOption
}

func newHandle[T any](c *core[T]) *Endpoint[T] {
	e := &Endpoint[T]{core: c}
	e.cleanup = runtime.AddCleanup(e, func(c *core[T]) {
		c.release("collected")
	}, c)
	return e
}

// Send enqueues v for the peer and returns without waiting for it to be
// received. If the peer's receive side is gone the returned *SendError holds v.
func (e *Endpoint[T]) Send(v T) error {
	defer runtime.KeepAlive(e)
	if e.closed.Load() {
		return &SendError[T]{Value: v, Err: ErrEndpointClosed}
	}

	c := e.core
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.outgoing.Send(v); err != nil {
		err = translate(err)
		c.metrics.failed.Add(context.Background(), 1, c.attrs)
		c.logger.Debug("send failed", "pair", c.pair, "side", c.side, "error", err)
		return &SendError[T]{Value: v, Err: err}
	}
	c.metrics.sent.Add(context.Background(), 1, c.attrs)
	return nil
}

// Recv blocks until the peer sends a value or the peer's send side is gone.
func (e *Endpoint[T]) Recv() (T, error) {
	return e.RecvContext(context.Background())
}

// RecvContext is Recv that gives up with ctx.Err() when ctx ends.
// If this handle has been closed by the time the wait ends, the error is
// ErrEndpointClosed even when ctx ended too.
func (e *Endpoint[T]) RecvContext(ctx context.Context) (T, error) {
	defer runtime.KeepAlive(e)
	var zero T
	if e.closed.Load() {
		return zero, ErrEndpointClosed
	}

	c := e.core
	if err := c.recvSlot.Acquire(ctx, 1); err != nil {
		if e.closed.Load() {
			return zero, ErrEndpointClosed
		}
		return zero, err
	}
	defer c.recvSlot.Release(1)

	v, err := c.incoming.RecvContext(ctx)
	return e.received(v, err)
}

// TryRecv returns the next value if one is ready, or ErrEmpty.
func (e *Endpoint[T]) TryRecv() (T, error) {
	defer runtime.KeepAlive(e)
	var zero T
	if e.closed.Load() {
		return zero, ErrEndpointClosed
	}

	c := e.core
	if !c.recvSlot.TryAcquire(1) {
		return zero, ErrEmpty
	}
	defer c.recvSlot.Release(1)

	v, err := c.incoming.TryRecv()
	return e.received(v, err)
}

func (e *Endpoint[T]) received(v T, err error) (T, error) {
	c := e.core
	if err != nil {
		var zero T
		if e.closed.Load() {
			return zero, ErrEndpointClosed
		}
		return zero, translate(err)
	}
	c.metrics.received.Add(context.Background(), 1, c.attrs)
	return v, nil
}

// Len returns the number of values waiting to be received on this endpoint.
func (e *Endpoint[T]) Len() int {
	defer runtime.KeepAlive(e)
	return e.core.incoming.Len()
}

// Clone returns another handle onto the same endpoint. It returns nil if e
// has been closed.
func (e *Endpoint[T]) Clone() *Endpoint[T] {
	defer runtime.KeepAlive(e)
	if e.closed.Load() {
		return nil
	}
	c := e.core
	for {
		n := c.refs.Load()
		if n <= 0 {
			return nil
		}
		if c.refs.CompareAndSwap(n, n+1) {
			break
		}
	}
	return newHandle(c)
}

// Close drops this handle. Once every handle of the endpoint is closed or
// collected, the peer observes ErrPeerGone. Close is safe to call more than once.
func (e *Endpoint[T]) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.cleanup.Stop()
	e.core.release("closed")
	return nil
}

// release drops one handle reference and lets go of both channel halves on the last one.
func (c *core[T]) release(reason string) {
	if c.refs.Add(-1) != 0 {
		return
	}
	c.outgoing.Close()
	c.incoming.Close()
	c.metrics.open.Add(context.Background(), -1, c.attrs)
	c.logger.Debug("endpoint released", "pair", c.pair, "side", c.side, "reason", reason)
}
