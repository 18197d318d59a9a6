package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Compile-time interface checks.
var (
	_ Conn     = (*tcpConn)(nil)
	_ Dialer   = (*TCPDialer)(nil)
	_ Listener = (*TCPListener)(nil)
)

// tcpConn frames a net.Conn with the length-prefix codec.
type tcpConn struct {
	conn net.Conn
	r    *bufio.Reader

	writeMu sync.Mutex
}

func newTCPConn(c net.Conn) *tcpConn {
	return &tcpConn{conn: c, r: bufio.NewReader(c)}
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return nil, err
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	frame := make([]byte, size)
	if _, err := io.ReadFull(c.r, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

func (c *tcpConn) WriteFrame(data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(data)))
	if _, err := c.conn.Write(header[:]); err != nil {
		return err
	}
	if _, err := c.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

// TCPDialer opens TCP connections to the relay.
type TCPDialer struct {
	// Timeout caps connection establishment. Zero means only the
	// context deadline applies.
	Timeout time.Duration
}

func (d *TCPDialer) DialContext(ctx context.Context, address string) (Conn, error) {
	conn, err := (&net.Dialer{Timeout: d.Timeout}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn), nil
}

// TCPListener accepts inbound device connections on the relay side.
// Use ":0" for a random available port.
type TCPListener struct {
	listener net.Listener
}

func NewTCPListener(address string) (*TCPListener, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}
	return &TCPListener{listener: listener}, nil
}

func (l *TCPListener) Accept() (Conn, error) {
	conn, err := l.listener.Accept()
	if err != nil {
		return nil, err
	}
	return newTCPConn(conn), nil
}

// Address returns the bound address in "host:port" form.
func (l *TCPListener) Address() string {
	return l.listener.Addr().String()
}

func (l *TCPListener) Close() error {
	return l.listener.Close()
}
