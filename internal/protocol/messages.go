// Package protocol defines the closed set of messages exchanged over a
// relay connection, and the single parse/validate step applied at the
// transport boundary. Anything that does not match a known tag is a
// protocol error: the message is dropped and the connection stays up.
package protocol

import (
	"fmt"

	"github.com/dmarkelov/notesync/internal/codec"
	"github.com/dmarkelov/notesync/internal/common"
)

// Message type tags. Wire constants.
const (
	TypeInit                 = "init"
	TypeInitResponse         = "init_response"
	TypePing                 = "ping"
	TypePong                 = "pong"
	TypeInviteCreate         = "invite_create"
	TypeInviteCreateResponse = "invite_create_response"
	TypeInviteRedeem         = "invite_redeem"
	TypeInviteRedeemResponse = "invite_redeem_response"
	TypeSyncRequest          = "sync_request"
	TypeSyncAccept           = "sync_accept"
	TypeSyncDecline          = "sync_decline"
	TypeFileMeta             = "file_meta"
	TypeFileRequest          = "file_request"
	TypeFileResponse         = "file_response"
	TypeFileDelete           = "file_delete"
	TypeFileListingRequest   = "file_listing_request"
	TypeFileListing          = "file_listing"
	TypeDeviceList           = "device_list"
)

var knownTypes = map[string]struct{}{
	TypeInit:                 {},
	TypeInitResponse:         {},
	TypePing:                 {},
	TypePong:                 {},
	TypeInviteCreate:         {},
	TypeInviteCreateResponse: {},
	TypeInviteRedeem:         {},
	TypeInviteRedeemResponse: {},
	TypeSyncRequest:          {},
	TypeSyncAccept:           {},
	TypeSyncDecline:          {},
	TypeFileMeta:             {},
	TypeFileRequest:          {},
	TypeFileResponse:         {},
	TypeFileDelete:           {},
	TypeFileListingRequest:   {},
	TypeFileListing:          {},
	TypeDeviceList:           {},
}

// Envelope is the frame-level wrapper around every message. From is
// stamped by the relay on forwarded peer messages, so a peer cannot
// claim another device's identity. To is empty for client↔relay
// control traffic.
type Envelope struct {
	Type    string          `cbor:"type"`
	From    string          `cbor:"from,omitempty"`
	To      string          `cbor:"to,omitempty"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// NewEnvelope builds an envelope for the given message type, addressed
// to the device id in to (empty for relay control messages).
func NewEnvelope(msgType, to string, payload any) (*Envelope, error) {
	raw, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", msgType, err)
	}
	return &Envelope{Type: msgType, To: to, Payload: raw}, nil
}

// DecodeEnvelope parses and validates a single frame. Unknown tags and
// malformed CBOR are rejected with common.ErrProtocol.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", common.ErrProtocol, err)
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return nil, fmt.Errorf("%w: unknown message type %q", common.ErrProtocol, env.Type)
	}
	return &env, nil
}

// DecodePayload unmarshals the envelope payload into v, reporting a
// protocol error on mismatch.
func (e *Envelope) DecodePayload(v any) error {
	if err := codec.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: malformed %s payload: %v", common.ErrProtocol, e.Type, err)
	}
	return nil
}

// Encode serializes the envelope to its frame bytes.
func (e *Envelope) Encode() ([]byte, error) {
	return codec.Marshal(e)
}

// Init is sent by a client immediately after the transport opens.
// SessionToken is empty on a device's very first connection; afterwards
// it carries the relay-issued token proving ownership of DeviceID.
type Init struct {
	DeviceID     string `cbor:"deviceId"`
	DeviceName   string `cbor:"deviceName"`
	SessionToken string `cbor:"sessionToken,omitempty"`
}

// InitResponse acknowledges (or refuses) an Init. On success it carries
// the session token to present on future connections.
type InitResponse struct {
	Success      bool   `cbor:"success"`
	Message      string `cbor:"message,omitempty"`
	SessionToken string `cbor:"sessionToken,omitempty"`
}

// Ping and Pong carry the sender's clock in unix milliseconds.
type Ping struct {
	Timestamp int64 `cbor:"timestamp"`
}

type Pong struct {
	Timestamp int64 `cbor:"timestamp"`
}

// InviteCreate registers an invitation key with the relay, associated
// with the issuing device, valid for TTLSeconds.
type InviteCreate struct {
	Key        string `cbor:"key"`
	TTLSeconds int64  `cbor:"ttlSeconds"`
}

type InviteCreateResponse struct {
	Success bool   `cbor:"success"`
	Message string `cbor:"message,omitempty"`
}

// InviteRedeem asks the relay to resolve an invitation key and forward
// a SyncRequest to the issuing device.
type InviteRedeem struct {
	Key        string `cbor:"key"`
	RequestID  string `cbor:"requestId"`
	DeviceName string `cbor:"deviceName"`
}

type InviteRedeemResponse struct {
	Success bool   `cbor:"success"`
	Message string `cbor:"message,omitempty"`
}

// SyncRequest is the trust handshake opener, relayed to the invitation
// issuer. It is the only peer message acted on before trust exists.
type SyncRequest struct {
	RequestID  string `cbor:"requestId"`
	DeviceID   string `cbor:"deviceId"`
	DeviceName string `cbor:"deviceName"`
}

// SyncAccept closes the handshake: the responder introduces itself so
// the initiator can record it as trusted.
type SyncAccept struct {
	RequestID  string `cbor:"requestId"`
	DeviceID   string `cbor:"deviceId"`
	DeviceName string `cbor:"deviceName"`
}

type SyncDecline struct {
	RequestID string `cbor:"requestId"`
}

// FileMeta announces one file version: path, plaintext content digest,
// modification time (unix ms) and size. Content never travels with the
// announcement.
type FileMeta struct {
	Path  string `cbor:"path"`
	Hash  string `cbor:"hash"`
	Mtime int64  `cbor:"mtime"`
	Size  int64  `cbor:"size"`
}

type FileRequest struct {
	Path string `cbor:"path"`
}

// FileResponse carries the encrypted content bundle plus the plaintext
// digest the receiver must verify after decryption.
type FileResponse struct {
	Path    string `cbor:"path"`
	Content string `cbor:"content"`
	Hash    string `cbor:"hash"`
}

type FileDelete struct {
	Path      string `cbor:"path"`
	DeletedAt int64  `cbor:"deletedAt"`
}

// FileListingRequest asks a peer to report every file it knows, used by
// full sync to discover files that exist remotely but not locally.
type FileListingRequest struct{}

type FileListing struct {
	Files []FileMeta `cbor:"files"`
}

// DeviceInfo is one entry of the relay's presence push.
type DeviceInfo struct {
	ID     string `cbor:"id"`
	Name   string `cbor:"name"`
	Online bool   `cbor:"online"`
}

type DeviceList struct {
	Devices []DeviceInfo `cbor:"devices"`
}
