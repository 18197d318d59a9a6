package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestTCP_FrameRoundTrip(t *testing.T) {
	l, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	accepted := make(chan Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- conn
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	d := &TCPDialer{Timeout: time.Second}
	client, err := d.DialContext(ctx, l.Address())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server := <-accepted
	defer server.Close()

	frames := [][]byte{
		[]byte("hello"),
		{},
		bytes.Repeat([]byte{0xab}, 100_000),
	}
	for _, want := range frames {
		if err := client.WriteFrame(want); err != nil {
			t.Fatalf("write: %v", err)
		}
		got, err := server.ReadFrame()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, want) {
			t.Fatalf("frame mismatch: got %d bytes, want %d", len(got), len(want))
		}
	}
}

func TestTCP_WriteFrame_TooLarge(t *testing.T) {
	l, err := NewTCPListener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	go func() {
		conn, err := l.Accept()
		if err == nil {
			defer conn.Close()
			_, _ = conn.ReadFrame()
		}
	}()

	d := &TCPDialer{Timeout: time.Second}
	client, err := d.DialContext(context.Background(), l.Address())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	huge := make([]byte, MaxFrameSize+1)
	if err := client.WriteFrame(huge); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("want ErrFrameTooLarge, got %v", err)
	}
}

func TestMemoryPair_Ordering(t *testing.T) {
	a, b := NewMemoryPair()
	defer a.Close()
	defer b.Close()

	for i := byte(0); i < 10; i++ {
		if err := a.WriteFrame([]byte{i}); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := byte(0); i < 10; i++ {
		got, err := b.ReadFrame()
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if len(got) != 1 || got[0] != i {
			t.Fatalf("out of order: got %v at %d", got, i)
		}
	}
}

func TestMemoryPair_CloseUnblocksReader(t *testing.T) {
	a, b := NewMemoryPair()

	errc := make(chan error, 1)
	go func() {
		_, err := b.ReadFrame()
		errc <- err
	}()

	a.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("want ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not unblocked by peer close")
	}
}

func TestMemoryNetwork_DialAndRefuse(t *testing.T) {
	n := NewMemoryNetwork()

	l, err := n.Listen("relay-1")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()

	client, err := n.Dialer().DialContext(context.Background(), "relay-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	server, err := l.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer server.Close()

	if err := client.WriteFrame([]byte("ping")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := server.ReadFrame()
	if err != nil || string(got) != "ping" {
		t.Fatalf("read: %q, %v", got, err)
	}

	if _, err := n.Dialer().DialContext(context.Background(), "nowhere"); err == nil {
		t.Fatal("expected connection refused for unknown address")
	}
}
