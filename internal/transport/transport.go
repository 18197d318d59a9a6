// Package transport provides the duplex frame channel between a device
// and the relay. The concrete transport is injected at construction
// time: TCP in production, an in-memory network in tests. A frame is an
// opaque byte slice; framing on the wire is a 4-byte big-endian length
// prefix followed by the payload.
package transport

import (
	"context"
	"errors"
)

// MaxFrameSize bounds a single frame. Larger frames indicate a corrupt
// stream or a misbehaving peer and abort the connection.
const MaxFrameSize = 32 << 20

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("transport: frame exceeds size limit")

// Conn is one duplex frame channel. ReadFrame blocks until a frame
// arrives, the peer closes, or Close is called. Implementations must
// allow one concurrent reader and one concurrent writer.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Close() error
}

// Dialer opens connections to a relay address. Injected into the
// client so tests can substitute the in-memory network.
type Dialer interface {
	DialContext(ctx context.Context, address string) (Conn, error)
}

// Listener accepts inbound connections on the relay side.
type Listener interface {
	Accept() (Conn, error)
	Address() string
	Close() error
}
