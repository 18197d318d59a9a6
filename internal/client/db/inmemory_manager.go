package db

import (
	"github.com/dmarkelov/notesync/internal/client/repositories/files"
	"github.com/dmarkelov/notesync/internal/client/repositories/peers"
	"github.com/dmarkelov/notesync/internal/client/repositories/settings"
)

type InMemoryRepositoryManager struct {
	settings *settings.InMemoryRepository
	peers    *peers.InMemoryRepository
	files    *files.InMemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		settings: settings.NewInMemoryRepository(),
		peers:    peers.NewInMemoryRepository(),
		files:    files.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Settings() settings.Repository { return m.settings }
func (m *InMemoryRepositoryManager) Peers() peers.Repository       { return m.peers }
func (m *InMemoryRepositoryManager) Files() files.Repository       { return m.files }
func (m *InMemoryRepositoryManager) Close() error                  { return nil }

var _ RepositoryManager = (*InMemoryRepositoryManager)(nil)
