// Package devices declares the relay-side repository contract for the
// device registry.
package devices

import (
	"context"

	"github.com/dmarkelov/notesync/internal/relay/models"
)

// Repository defines operations over registered devices.
type Repository interface {
	// Upsert inserts a device registration or refreshes its name and
	// last-seen timestamp.
	Upsert(ctx context.Context, device *models.Device) error

	// Get returns a device by id, or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Device, error)
}
