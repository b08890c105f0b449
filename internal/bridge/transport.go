package bridge

import "context"

// Conn is one established transport connection. WriteMessage is never called
// concurrently; ReadMessage is only called from the bridge's read loop.
type Conn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Transport opens connections to the peer
type Transport interface {
	Dial(ctx context.Context) (Conn, error)
}

// TransportFunc adapts a function into a Transport
type TransportFunc func(ctx context.Context) (Conn, error)

// Dial calls f
func (f TransportFunc) Dial(ctx context.Context) (Conn, error) {
	return f(ctx)
}
