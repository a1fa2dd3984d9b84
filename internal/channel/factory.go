package channel

// New creates a new unidirectional channel and returns its two halves.
// Buffering is unbounded.
func New[T any]() (Sender[T], Receiver[T]) {
	tx, rx := NewUnbounded[T]()
	return tx, rx
}
