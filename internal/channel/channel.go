// Package channel provides generic unidirectional queues with reference-counted halves.
package channel

import (
	"context"
	"errors"
)

var (
	// ErrDisconnected is returned when the other half of the queue has no holders left.
	ErrDisconnected = errors.New("channel: other half disconnected")
	// ErrHandleClosed is returned when a half is used after its own Close.
	ErrHandleClosed = errors.New("channel: handle closed")
	// ErrEmpty is returned by TryRecv when nothing is buffered.
	ErrEmpty = errors.New("channel: empty")
)

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Recv() (T, error)
	RecvContext(ctx context.Context) (T, error)
	TryRecv() (T, error)
	Len() int
	Close()
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T) error
	Close()
}
