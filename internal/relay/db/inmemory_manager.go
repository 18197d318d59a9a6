package db

import (
	"context"

	"github.com/dmarkelov/notesync/internal/relay/repositories/devices"
	"github.com/dmarkelov/notesync/internal/relay/repositories/invitations"
)

// InMemoryRepositoryManager backs the relay with process-local maps.
// Used when no database DSN is configured, and by tests.
type InMemoryRepositoryManager struct {
	devices     devices.Repository
	invitations invitations.Repository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		devices:     devices.NewInMemoryRepository(),
		invitations: invitations.NewInMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) Devices() devices.Repository {
	return m.devices
}

func (m *InMemoryRepositoryManager) Invitations() invitations.Repository {
	return m.invitations
}

func (m *InMemoryRepositoryManager) Close(_ context.Context) error {
	return nil
}
