// Package relayconn maintains the client's single connection to the
// relay: handshake, keepalive, automatic reconnection with exponential
// backoff, and dispatch of inbound messages to the sync engine.
package relayconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/logging"
	"github.com/dmarkelov/notesync/internal/protocol"
	"github.com/dmarkelov/notesync/internal/transport"
)

const (
	defaultPingInterval     = 30 * time.Second
	defaultBackoffMin       = time.Second
	defaultBackoffMax       = 2 * time.Minute
	defaultHandshakeTimeout = 10 * time.Second

	// Two unanswered pings in a row mean the transport is dead even if
	// the OS has not noticed yet.
	maxMissedPongs = 2
)

// ErrClosed is returned when an operation races with Close.
var ErrClosed = errors.New("relayconn: connection closed")

// Callbacks are invoked from the connection's read goroutine. They must
// not block for long; the engine hands messages off to its own loop.
type Callbacks struct {
	// OnMessage receives every peer and relay message that has no
	// dedicated callback below.
	OnMessage func(env *protocol.Envelope)

	// OnSyncRequest receives incoming trust requests.
	OnSyncRequest func(env *protocol.Envelope)

	// OnDeviceList receives relay presence pushes.
	OnDeviceList func(list protocol.DeviceList)

	// OnConnectionChange fires on every transition into or out of the
	// connected state.
	OnConnectionChange func(connected bool)
}

// Options configure a Connection. Dialer is required; zero durations
// take the defaults above.
type Options struct {
	Address    string
	DeviceID   string
	DeviceName string

	// SessionToken is the relay-issued token from a previous run, empty
	// on first registration. OnSessionToken is called whenever the
	// relay issues a fresh one, so the caller can persist it.
	SessionToken   string
	OnSessionToken func(token string)

	Dialer transport.Dialer
	Logger logging.Logger

	PingInterval     time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	HandshakeTimeout time.Duration
}

// Connection is the client's relay link. All methods are safe for
// concurrent use. Outbound sends are best-effort: Send reports false
// while disconnected and the caller decides what to do about it.
type Connection struct {
	opts   Options
	cb     Callbacks
	logger logging.Logger

	state atomic.Int32

	mu   sync.Mutex
	conn transport.Conn

	sessionMu    sync.Mutex
	sessionToken string

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func New(opts Options, cb Callbacks) *Connection {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.BackoffMin <= 0 {
		opts.BackoffMin = defaultBackoffMin
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = defaultBackoffMax
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Connection{
		opts:         opts,
		cb:           cb,
		logger:       logger.With("component", "relayconn"),
		sessionToken: opts.SessionToken,
		closed:       make(chan struct{}),
	}
}

// Start launches the connection loop. It returns immediately; the first
// connection attempt happens in the background.
func (c *Connection) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Close tears the connection down and stops reconnecting.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.setState(StateClosing)
		close(c.closed)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
	c.wg.Wait()
	c.setState(StateDisconnected)
}

// State reports the current lifecycle state.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// IsConnected reports whether the handshake has completed on the
// current transport.
func (c *Connection) IsConnected() bool {
	return c.State() == StateConnected
}

// Send encodes and writes one message. Returns false when disconnected
// or when the write fails; the connection loop handles recovery.
func (c *Connection) Send(msgType, to string, payload any) bool {
	env, err := protocol.NewEnvelope(msgType, to, payload)
	if err != nil {
		c.logger.Error(context.Background(), "message encode failed", "type", msgType, "error", err)
		return false
	}
	return c.SendEnvelope(env)
}

func (c *Connection) SendEnvelope(env *protocol.Envelope) bool {
	if c.State() != StateConnected {
		return false
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return false
	}

	data, err := env.Encode()
	if err != nil {
		c.logger.Error(context.Background(), "envelope encode failed", "type", env.Type, "error", err)
		return false
	}
	if err := conn.WriteFrame(data); err != nil {
		c.logger.Warn(context.Background(), "frame write failed", "type", env.Type, "error", err)
		return false
	}
	return true
}

func (c *Connection) run(ctx context.Context) {
	defer c.wg.Done()

	attempt := 0
	for {
		select {
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		default:
		}

		if attempt == 0 {
			c.setState(StateConnecting)
		} else {
			c.setState(StateReconnecting)
		}

		conn, err := c.connect(ctx)
		if err != nil {
			if errors.Is(err, ErrClosed) || ctx.Err() != nil {
				return
			}
			delay := Backoff(attempt, c.opts.BackoffMin, c.opts.BackoffMax)
			c.logger.Warn(ctx, "relay connection failed",
				"attempt", attempt+1, "retry_in", delay.String(), "error", err)
			attempt++
			select {
			case <-time.After(delay):
			case <-c.closed:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		attempt = 0
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateConnected)
		c.logger.Info(ctx, "relay connection established", "addr", c.opts.Address)
		c.notifyConnChange(true)

		var missed atomic.Int32
		keepaliveDone := make(chan struct{})
		c.wg.Add(1)
		go c.keepalive(ctx, conn, &missed, keepaliveDone)

		c.readLoop(ctx, conn, &missed)

		close(keepaliveDone)
		conn.Close()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.notifyConnChange(false)
	}
}

// connect dials the relay and performs the init handshake.
func (c *Connection) connect(ctx context.Context) (transport.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	conn, err := c.opts.Dialer.DialContext(dialCtx, c.opts.Address)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	init := protocol.Init{
		DeviceID:     c.opts.DeviceID,
		DeviceName:   c.opts.DeviceName,
		SessionToken: c.currentToken(),
	}
	env, err := protocol.NewEnvelope(protocol.TypeInit, "", init)
	if err != nil {
		conn.Close()
		return nil, err
	}
	data, err := env.Encode()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := conn.WriteFrame(data); err != nil {
		conn.Close()
		return nil, fmt.Errorf("init write: %w", err)
	}

	type result struct {
		resp protocol.InitResponse
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		frame, err := conn.ReadFrame()
		if err != nil {
			ch <- result{err: fmt.Errorf("init read: %w", err)}
			return
		}
		respEnv, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			ch <- result{err: err}
			return
		}
		if respEnv.Type != protocol.TypeInitResponse {
			ch <- result{err: fmt.Errorf("%w: expected init_response, got %s", common.ErrProtocol, respEnv.Type)}
			return
		}
		var resp protocol.InitResponse
		if err := respEnv.DecodePayload(&resp); err != nil {
			ch <- result{err: err}
			return
		}
		ch <- result{resp: resp}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			conn.Close()
			return nil, r.err
		}
		if !r.resp.Success {
			conn.Close()
			return nil, fmt.Errorf("%w: relay refused init: %s", common.ErrUnauthorized, r.resp.Message)
		}
		if r.resp.SessionToken != "" {
			c.storeToken(r.resp.SessionToken)
		}
		return conn, nil
	case <-time.After(c.opts.HandshakeTimeout):
		conn.Close()
		return nil, errors.New("init handshake timed out")
	case <-c.closed:
		conn.Close()
		return nil, ErrClosed
	}
}

// keepalive pings on a fixed interval and kills the transport after
// maxMissedPongs consecutive silent intervals, which bounces the run
// loop into reconnection.
func (c *Connection) keepalive(ctx context.Context, conn transport.Conn, missed *atomic.Int32, done chan struct{}) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if missed.Load() >= maxMissedPongs {
				c.logger.Warn(ctx, "relay unresponsive, dropping connection",
					"missed_pongs", missed.Load())
				conn.Close()
				return
			}
			if !c.Send(protocol.TypePing, "", protocol.Ping{Timestamp: time.Now().UnixMilli()}) {
				return
			}
			missed.Add(1)
		case <-done:
			return
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *Connection) readLoop(ctx context.Context, conn transport.Conn, missed *atomic.Int32) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Warn(ctx, "relay connection lost", "error", err)
			}
			return
		}

		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			// Unknown or malformed message: drop it, keep the link.
			c.logger.Warn(ctx, "dropping invalid message", "error", err)
			continue
		}

		switch env.Type {
		case protocol.TypePong:
			missed.Store(0)
		case protocol.TypeSyncRequest:
			if c.cb.OnSyncRequest != nil {
				c.cb.OnSyncRequest(env)
			}
		case protocol.TypeDeviceList:
			var list protocol.DeviceList
			if err := env.DecodePayload(&list); err != nil {
				c.logger.Warn(ctx, "dropping invalid message", "error", err)
				continue
			}
			if c.cb.OnDeviceList != nil {
				c.cb.OnDeviceList(list)
			}
		default:
			if c.cb.OnMessage != nil {
				c.cb.OnMessage(env)
			}
		}
	}
}

func (c *Connection) setState(s State) {
	// Closing is terminal except for the final Disconnected.
	if State(c.state.Load()) == StateClosing && s != StateDisconnected {
		return
	}
	c.state.Store(int32(s))
}

func (c *Connection) notifyConnChange(connected bool) {
	if c.cb.OnConnectionChange != nil {
		c.cb.OnConnectionChange(connected)
	}
}

func (c *Connection) currentToken() string {
	c.sessionMu.Lock()
	defer c.sessionMu.Unlock()
	return c.sessionToken
}

func (c *Connection) storeToken(token string) {
	c.sessionMu.Lock()
	c.sessionToken = token
	c.sessionMu.Unlock()
	if c.opts.OnSessionToken != nil {
		c.opts.OnSessionToken(token)
	}
}
