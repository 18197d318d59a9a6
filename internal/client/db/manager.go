// Package db selects and initializes the client's local storage.
package db

import (
	"github.com/dmarkelov/notesync/internal/client/repositories/files"
	"github.com/dmarkelov/notesync/internal/client/repositories/peers"
	"github.com/dmarkelov/notesync/internal/client/repositories/settings"
)

// RepositoryManager gives access to the client repositories.
type RepositoryManager interface {
	Settings() settings.Repository
	Peers() peers.Repository
	Files() files.Repository
	Close() error
}
