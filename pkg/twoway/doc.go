// Package twoway provides a bidirectional channel made of two linked endpoints.
//
// NewPair returns endpoints a and b. Values sent on a are received on b and
// values sent on b are received on a. Each direction is an unbounded FIFO.
// Nothing outside the pair can observe or inject values.
//
// An *Endpoint is a handle that may be used from any number of goroutines.
// Clone returns another handle onto the same endpoint. When the last handle
// of an endpoint is closed, or becomes unreachable and is collected, the
// endpoint lets go of both directions: a blocked Recv on the peer returns
// ErrPeerGone once the buffered values are drained, and Send on the peer
// fails with a *SendError carrying the value back.
//
//	a, b := twoway.NewPair[int]()
//	go func() { _ = a.Send(2763) }()
//	v, err := b.Recv()
package twoway
