package core

// ConnID is an opaque handle assigned by the transport adapter when it
// accepts a connection. All registry bookkeeping is keyed by it.
type ConnID string

// Frame is a serialized wire message.
type Frame []byte

// Conn abstracts an outbound half of a live connection.
// Owned by the adapter; the adapter must Close() it.
type Conn interface {
	ID() ConnID
	TrySend(Frame) error
}
