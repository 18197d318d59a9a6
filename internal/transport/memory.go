package transport

import (
	"context"
	"errors"
	"sync"
)

// Compile-time interface checks.
var (
	_ Conn     = (*memoryConn)(nil)
	_ Dialer   = (*MemoryDialer)(nil)
	_ Listener = (*MemoryListener)(nil)
)

// ErrClosed is returned by memory transport operations after Close.
var ErrClosed = errors.New("transport: connection closed")

// memoryConn is one side of an in-process frame pipe.
type memoryConn struct {
	recv <-chan []byte
	send chan<- []byte

	closeOnce  sync.Once
	localDone  chan struct{}
	remoteDone chan struct{}
}

// NewMemoryPair returns two connected Conns. Frames written to one side
// are read from the other, in order. The channels are buffered so a
// writer is not blocked on a slow reader during tests.
func NewMemoryPair() (Conn, Conn) {
	aToB := make(chan []byte, 256)
	bToA := make(chan []byte, 256)
	aDone := make(chan struct{})
	bDone := make(chan struct{})

	a := &memoryConn{recv: bToA, send: aToB, localDone: aDone, remoteDone: bDone}
	b := &memoryConn{recv: aToB, send: bToA, localDone: bDone, remoteDone: aDone}
	return a, b
}

func (c *memoryConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.recv:
		return frame, nil
	case <-c.localDone:
		return nil, ErrClosed
	case <-c.remoteDone:
		// Drain frames the peer sent before closing.
		select {
		case frame := <-c.recv:
			return frame, nil
		default:
			return nil, ErrClosed
		}
	}
}

func (c *memoryConn) WriteFrame(data []byte) error {
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case <-c.localDone:
		return ErrClosed
	case <-c.remoteDone:
		return ErrClosed
	case c.send <- frame:
		return nil
	}
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() { close(c.localDone) })
	return nil
}

// MemoryNetwork is an in-process relay "network": listeners register by
// address, dialers connect to them. It stands in for real TCP in engine
// and relay tests.
type MemoryNetwork struct {
	mu        sync.Mutex
	listeners map[string]*MemoryListener
}

func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{listeners: make(map[string]*MemoryListener)}
}

// Listen registers a listener under the given address.
func (n *MemoryNetwork) Listen(address string) (*MemoryListener, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.listeners[address]; ok {
		return nil, errors.New("transport: address already in use: " + address)
	}
	l := &MemoryListener{address: address, backlog: make(chan Conn, 16), done: make(chan struct{})}
	n.listeners[address] = l
	return l, nil
}

// Dialer returns a Dialer connecting through this network.
func (n *MemoryNetwork) Dialer() *MemoryDialer {
	return &MemoryDialer{network: n}
}

type MemoryListener struct {
	address string
	backlog chan Conn

	closeOnce sync.Once
	done      chan struct{}
}

func (l *MemoryListener) Accept() (Conn, error) {
	select {
	case conn := <-l.backlog:
		return conn, nil
	case <-l.done:
		return nil, ErrClosed
	}
}

func (l *MemoryListener) Address() string {
	return l.address
}

func (l *MemoryListener) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}

type MemoryDialer struct {
	network *MemoryNetwork
}

func (d *MemoryDialer) DialContext(ctx context.Context, address string) (Conn, error) {
	d.network.mu.Lock()
	l, ok := d.network.listeners[address]
	d.network.mu.Unlock()

	if !ok {
		return nil, errors.New("transport: connection refused: " + address)
	}

	client, server := NewMemoryPair()
	select {
	case l.backlog <- server:
		return client, nil
	case <-l.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
