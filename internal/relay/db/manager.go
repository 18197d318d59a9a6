// Package db wires the relay's repositories to a storage backend:
// PostgreSQL when a DSN is configured, plain in-memory maps otherwise.
package db

import (
	"context"

	"github.com/dmarkelov/notesync/internal/relay/repositories/devices"
	"github.com/dmarkelov/notesync/internal/relay/repositories/invitations"
)

// RepositoryManager bundles the relay's repositories behind one
// constructor so the server does not care which backend is in use.
type RepositoryManager interface {
	Devices() devices.Repository
	Invitations() invitations.Repository
	Close(ctx context.Context) error
}
