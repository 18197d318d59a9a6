// Package models defines the client-side records: the local file index,
// trusted peers and pending trust requests.
package models

import "time"

// FileRecord is one locally known file, including remotely-originated
// ones. Hash is always the digest of the plaintext, so it is comparable
// across devices despite independent encryption nonces. Mtime is unix
// milliseconds, the unit used on the wire.
type FileRecord struct {
	Path  string
	Hash  string
	Mtime int64
	Size  int64
}

// Peer is a known remote device. Trusted peers' sync messages are acted
// on automatically. Persistent distinguishes a permanent trust grant
// from a session-scoped one: session grants survive reconnects within
// the same run but are purged at the next startup.
type Peer struct {
	ID         string
	Name       string
	Trusted    bool
	Persistent bool
	LastSeen   time.Time
}

// PendingSyncRequest is an incoming trust request awaiting an explicit
// operator decision. Never auto-processed.
type PendingSyncRequest struct {
	RequestID  string
	DeviceID   string
	DeviceName string
	IssuedAt   time.Time
}
