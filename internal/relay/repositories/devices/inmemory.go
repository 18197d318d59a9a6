package devices

import (
	"context"
	"sync"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/relay/models"
)

// InMemoryRepository keeps the device registry in a map. Used by tests
// and DSN-less development runs; registrations do not survive a relay
// restart, which only costs devices a fresh registration on reconnect.
type InMemoryRepository struct {
	mu      sync.RWMutex
	devices map[string]models.Device
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{devices: make(map[string]models.Device)}
}

func (r *InMemoryRepository) Upsert(_ context.Context, device *models.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[device.ID] = *device
	return nil
}

func (r *InMemoryRepository) Get(_ context.Context, id string) (*models.Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	device, ok := r.devices[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &device, nil
}
