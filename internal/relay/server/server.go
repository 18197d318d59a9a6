// Package server implements the relay: an untrusted message router that
// forwards opaque envelopes between devices by device id. The relay
// authenticates routing identity (session tokens) and services the
// invitation-key exchange, but never inspects or stores file content —
// everything it forwards is ciphertext plus non-sensitive metadata.
package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/logging"
	"github.com/dmarkelov/notesync/internal/protocol"
	"github.com/dmarkelov/notesync/internal/relay/auth"
	"github.com/dmarkelov/notesync/internal/relay/config"
	"github.com/dmarkelov/notesync/internal/relay/db"
	"github.com/dmarkelov/notesync/internal/relay/models"
	"github.com/dmarkelov/notesync/internal/transport"
)

// forwardable is the set of peer-to-peer message types the relay routes
// verbatim (after stamping From). Control messages are consumed by the
// relay itself.
var forwardable = map[string]struct{}{
	protocol.TypeSyncRequest:        {},
	protocol.TypeSyncAccept:         {},
	protocol.TypeSyncDecline:        {},
	protocol.TypeFileMeta:           {},
	protocol.TypeFileRequest:        {},
	protocol.TypeFileResponse:       {},
	protocol.TypeFileDelete:         {},
	protocol.TypeFileListingRequest: {},
	protocol.TypeFileListing:        {},
}

// session is one authenticated device connection.
type session struct {
	deviceID   string
	deviceName string
	conn       transport.Conn
}

// Server accepts device connections, performs the init handshake and
// routes envelopes between live sessions.
type Server struct {
	listener transport.Listener
	logger   logging.Logger
	repos    db.RepositoryManager
	cfg      *config.Config

	mu       sync.Mutex
	sessions map[string]*session
}

func NewServer(l transport.Listener, log logging.Logger, repos db.RepositoryManager, cfg *config.Config) *Server {
	return &Server{
		listener: l,
		logger:   log.With("module", "relay_server"),
		repos:    repos,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// Run accepts connections until ctx is cancelled. Each connection is
// served on its own goroutine; a failed connection only affects that
// device.
func (s *Server) Run(ctx context.Context) error {
	go s.sweepExpiredInvitations(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "stopping relay")
		s.listener.Close()
	}()

	s.logger.Info(ctx, "relay listening", "address", s.listener.Address())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) sweepExpiredInvitations(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.repos.Invitations().DeleteExpired(ctx, time.Now()); err != nil {
				s.logger.Warn(ctx, "invitation sweep failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// handleConn drives one device connection: init handshake first, then
// the message loop until the transport fails or the server stops.
func (s *Server) handleConn(ctx context.Context, conn transport.Conn) {
	defer conn.Close()

	sess, err := s.handshake(ctx, conn)
	if err != nil {
		s.logger.Warn(ctx, "handshake failed", "error", err)
		return
	}

	log := s.logger.With("device_id", sess.deviceID)
	log.Info(ctx, "session opened", "device_name", sess.deviceName)

	s.register(ctx, sess)
	defer func() {
		s.unregister(ctx, sess)
		log.Info(ctx, "session closed")
	}()

	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			return
		}

		env, err := protocol.DecodeEnvelope(frame)
		if err != nil {
			// A single bad message is dropped; the session stays up.
			log.Warn(ctx, "dropping message", "error", err)
			continue
		}

		s.dispatch(ctx, sess, env, log)
	}
}

// handshake runs the init exchange. The first connection of a device id
// registers it and issues a session token; later connections must
// present a token proving ownership of that id.
func (s *Server) handshake(ctx context.Context, conn transport.Conn) (*session, error) {
	frame, err := conn.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("reading init: %w", err)
	}

	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return nil, err
	}
	if env.Type != protocol.TypeInit {
		return nil, fmt.Errorf("%w: expected init, got %s", common.ErrProtocol, env.Type)
	}

	var init protocol.Init
	if err := env.DecodePayload(&init); err != nil {
		return nil, err
	}
	if init.DeviceID == "" || init.DeviceName == "" {
		s.refuseInit(conn, "device id and name are required")
		return nil, fmt.Errorf("%w: empty device identity", common.ErrProtocol)
	}

	known := true
	if _, err := s.repos.Devices().Get(ctx, init.DeviceID); err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.refuseInit(conn, "registration unavailable")
			return nil, err
		}
		known = false
	}

	// A known device id must prove ownership; without this check any
	// client could receive another device's messages.
	if known {
		claimed, err := auth.GetDeviceIDFromToken(init.SessionToken, []byte(s.cfg.SecretKey))
		if err != nil || claimed != init.DeviceID {
			s.refuseInit(conn, "invalid session token")
			return nil, fmt.Errorf("%w: device %s", common.ErrInvalidToken, init.DeviceID)
		}
	}

	if err := s.repos.Devices().Upsert(ctx, &models.Device{
		ID:       init.DeviceID,
		Name:     init.DeviceName,
		LastSeen: time.Now(),
	}); err != nil {
		s.refuseInit(conn, "registration unavailable")
		return nil, err
	}

	token, err := auth.GenerateToken(init.DeviceID, []byte(s.cfg.SecretKey), s.cfg.SessionTokenValidity)
	if err != nil {
		s.refuseInit(conn, "registration unavailable")
		return nil, err
	}

	if err := s.send(conn, protocol.TypeInitResponse, "", protocol.InitResponse{
		Success:      true,
		SessionToken: token,
	}); err != nil {
		return nil, err
	}

	return &session{deviceID: init.DeviceID, deviceName: init.DeviceName, conn: conn}, nil
}

func (s *Server) refuseInit(conn transport.Conn, reason string) {
	_ = s.send(conn, protocol.TypeInitResponse, "", protocol.InitResponse{Success: false, Message: reason})
}

func (s *Server) dispatch(ctx context.Context, sess *session, env *protocol.Envelope, log logging.Logger) {
	switch env.Type {
	case protocol.TypePing:
		var ping protocol.Ping
		if err := env.DecodePayload(&ping); err != nil {
			log.Warn(ctx, "dropping message", "error", err)
			return
		}
		_ = s.send(sess.conn, protocol.TypePong, "", protocol.Pong{Timestamp: ping.Timestamp})

	case protocol.TypeInviteCreate:
		s.handleInviteCreate(ctx, sess, env, log)

	case protocol.TypeInviteRedeem:
		s.handleInviteRedeem(ctx, sess, env, log)

	default:
		if _, ok := forwardable[env.Type]; !ok {
			log.Warn(ctx, "dropping message", "type", env.Type, "reason", "not forwardable")
			return
		}
		s.forward(ctx, sess, env, log)
	}
}

// forward routes a peer message to its destination session, stamping
// From so recipients can authorize against their trust store. Messages
// to offline devices are dropped — the relay never buffers.
func (s *Server) forward(ctx context.Context, sess *session, env *protocol.Envelope, log logging.Logger) {
	if env.To == "" || env.To == sess.deviceID {
		log.Warn(ctx, "dropping message", "type", env.Type, "reason", "bad destination")
		return
	}

	s.mu.Lock()
	target, online := s.sessions[env.To]
	s.mu.Unlock()

	if !online {
		log.Debug(ctx, "destination offline", "type", env.Type, "to", env.To)
		return
	}

	env.From = sess.deviceID
	frame, err := env.Encode()
	if err != nil {
		log.Error(ctx, "encoding forwarded message", "error", err)
		return
	}
	if err := target.conn.WriteFrame(frame); err != nil {
		log.Debug(ctx, "forward failed", "type", env.Type, "to", env.To, "error", err)
	}
}

func (s *Server) handleInviteCreate(ctx context.Context, sess *session, env *protocol.Envelope, log logging.Logger) {
	var req protocol.InviteCreate
	if err := env.DecodePayload(&req); err != nil {
		log.Warn(ctx, "dropping message", "error", err)
		return
	}

	if !validInvitationKey(req.Key) {
		_ = s.send(sess.conn, protocol.TypeInviteCreateResponse, "", protocol.InviteCreateResponse{
			Success: false, Message: "invalid invitation key format",
		})
		return
	}

	ttl := s.cfg.InvitationTTL
	if req.TTLSeconds > 0 && time.Duration(req.TTLSeconds)*time.Second < ttl {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	err := s.repos.Invitations().Create(ctx, &models.Invitation{
		Key:       strings.ToUpper(req.Key),
		DeviceID:  sess.deviceID,
		ExpiresAt: time.Now().Add(ttl),
	})
	if err != nil {
		log.Error(ctx, "storing invitation", "error", err)
		_ = s.send(sess.conn, protocol.TypeInviteCreateResponse, "", protocol.InviteCreateResponse{
			Success: false, Message: "could not register invitation key",
		})
		return
	}

	_ = s.send(sess.conn, protocol.TypeInviteCreateResponse, "", protocol.InviteCreateResponse{Success: true})
}

// handleInviteRedeem consumes the key and relays a sync_request to the
// issuing device on behalf of the redeemer.
func (s *Server) handleInviteRedeem(ctx context.Context, sess *session, env *protocol.Envelope, log logging.Logger) {
	respond := func(success bool, message string) {
		_ = s.send(sess.conn, protocol.TypeInviteRedeemResponse, "", protocol.InviteRedeemResponse{
			Success: success, Message: message,
		})
	}

	var req protocol.InviteRedeem
	if err := env.DecodePayload(&req); err != nil {
		log.Warn(ctx, "dropping message", "error", err)
		return
	}

	if len(req.Key) < common.InvitationKeyMinLength {
		respond(false, "invitation key is too short")
		return
	}

	invitation, err := s.repos.Invitations().Redeem(ctx, strings.ToUpper(req.Key), time.Now())
	switch {
	case errors.Is(err, common.ErrKeyExpired):
		respond(false, "invitation key has expired")
		return
	case errors.Is(err, common.ErrKeyConsumed):
		respond(false, "invitation key has already been used")
		return
	case errors.Is(err, common.ErrNotFound):
		respond(false, "unknown invitation key")
		return
	case err != nil:
		log.Error(ctx, "redeeming invitation", "error", err)
		respond(false, "could not redeem invitation key")
		return
	}

	if invitation.DeviceID == sess.deviceID {
		respond(false, "cannot redeem your own invitation key")
		return
	}

	s.mu.Lock()
	issuer, online := s.sessions[invitation.DeviceID]
	s.mu.Unlock()

	if !online {
		respond(false, "issuing device is offline")
		return
	}

	request, err := protocol.NewEnvelope(protocol.TypeSyncRequest, invitation.DeviceID, protocol.SyncRequest{
		RequestID:  req.RequestID,
		DeviceID:   sess.deviceID,
		DeviceName: req.DeviceName,
	})
	if err != nil {
		log.Error(ctx, "building sync request", "error", err)
		respond(false, "could not deliver sync request")
		return
	}
	request.From = sess.deviceID

	frame, err := request.Encode()
	if err == nil {
		err = issuer.conn.WriteFrame(frame)
	}
	if err != nil {
		respond(false, "could not deliver sync request")
		return
	}

	log.Info(ctx, "invitation redeemed", "issuer", invitation.DeviceID)
	respond(true, "")
}

func (s *Server) register(ctx context.Context, sess *session) {
	s.mu.Lock()
	if old, ok := s.sessions[sess.deviceID]; ok {
		// A device reconnected before its previous session died.
		old.conn.Close()
	}
	s.sessions[sess.deviceID] = sess
	s.mu.Unlock()

	s.broadcastPresence(ctx)
}

func (s *Server) unregister(ctx context.Context, sess *session) {
	s.mu.Lock()
	if current, ok := s.sessions[sess.deviceID]; ok && current == sess {
		delete(s.sessions, sess.deviceID)
	}
	s.mu.Unlock()

	s.broadcastPresence(ctx)
}

// broadcastPresence pushes the current online device list to every
// session. Clients filter it against their own trust stores; the relay
// knows nothing about trust.
func (s *Server) broadcastPresence(ctx context.Context) {
	s.mu.Lock()
	list := protocol.DeviceList{Devices: make([]protocol.DeviceInfo, 0, len(s.sessions))}
	targets := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list.Devices = append(list.Devices, protocol.DeviceInfo{
			ID:     sess.deviceID,
			Name:   sess.deviceName,
			Online: true,
		})
		targets = append(targets, sess)
	}
	s.mu.Unlock()

	for _, sess := range targets {
		if err := s.send(sess.conn, protocol.TypeDeviceList, sess.deviceID, list); err != nil {
			s.logger.Debug(ctx, "presence push failed", "device_id", sess.deviceID, "error", err)
		}
	}
}

func (s *Server) send(conn transport.Conn, msgType, to string, payload any) error {
	env, err := protocol.NewEnvelope(msgType, to, payload)
	if err != nil {
		return err
	}
	frame, err := env.Encode()
	if err != nil {
		return err
	}
	return conn.WriteFrame(frame)
}

func validInvitationKey(key string) bool {
	if len(key) < common.InvitationKeyMinLength {
		return false
	}
	for _, r := range strings.ToUpper(key) {
		alpha := r >= 'A' && r <= 'Z'
		digit := r >= '0' && r <= '9'
		if !alpha && !digit {
			return false
		}
	}
	return true
}
