package twoway

import (
	"errors"
	"fmt"

	"github.com/OCAP2/twoway/internal/channel"
)

var (
	// ErrPeerGone means the other side of a direction is permanently gone.
	// For Send the peer has released its receive side; for Recv the peer has
	// released its send side and nothing is left buffered.
	ErrPeerGone = errors.New("twoway: peer gone")
	// ErrEndpointClosed is returned when a handle is used after its own Close.
	ErrEndpointClosed = errors.New("twoway: endpoint closed")
	// ErrEmpty is returned by TryRecv when no value is ready.
	ErrEmpty = errors.New("twoway: no value ready")
)

// SendError reports a failed Send and hands back the value that was not delivered.
type SendError[T any] struct {
	Value T
	Err   error
}

func (e *SendError[T]) Error() string {
	return fmt.Sprintf("twoway: send failed: %v", e.Err)
}

func (e *SendError[T]) Unwrap() error {
	return e.Err
}

// translate maps channel errors onto this package's sentinels.
func translate(err error) error {
	switch {
	case errors.Is(err, channel.ErrDisconnected):
		return ErrPeerGone
	case errors.Is(err, channel.ErrHandleClosed):
		return ErrEndpointClosed
	case errors.Is(err, channel.ErrEmpty):
		return ErrEmpty
	default:
		return err
	}
}
