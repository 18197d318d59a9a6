// Package identity manages the device's stable id and display name.
package identity

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/dmarkelov/notesync/internal/client/repositories/settings"
	"github.com/dmarkelov/notesync/internal/common"
)

const (
	keyDeviceID     = "device_id"
	keyDeviceName   = "device_name"
	keySessionToken = "session_token"
)

// Identity is the device's self-description sent during the relay
// handshake. The id is generated once and persisted; it never changes
// for the lifetime of the local database.
type Identity struct {
	DeviceID   string
	DeviceName string
}

// Load reads the stored identity, generating and persisting a fresh one
// on first run. A non-empty name overrides and persists the display
// name; otherwise the stored name, or the hostname, is used.
func Load(ctx context.Context, repo settings.Repository, name string) (*Identity, error) {
	id, err := repo.Get(ctx, keyDeviceID)
	if errors.Is(err, common.ErrNotFound) {
		id = uuid.NewString()
		if err := repo.Set(ctx, keyDeviceID, id); err != nil {
			return nil, fmt.Errorf("error saving device id: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("error loading device id: %w", err)
	}

	if name == "" {
		name, err = repo.Get(ctx, keyDeviceName)
		if errors.Is(err, common.ErrNotFound) {
			if name, err = os.Hostname(); err != nil {
				name = "device-" + id[:8]
			}
		} else if err != nil {
			return nil, fmt.Errorf("error loading device name: %w", err)
		}
	}
	if err := repo.Set(ctx, keyDeviceName, name); err != nil {
		return nil, fmt.Errorf("error saving device name: %w", err)
	}

	return &Identity{DeviceID: id, DeviceName: name}, nil
}

// SessionToken returns the stored relay session token, empty when the
// device has never registered.
func SessionToken(ctx context.Context, repo settings.Repository) string {
	token, err := repo.Get(ctx, keySessionToken)
	if err != nil {
		return ""
	}
	return token
}

// SaveSessionToken persists the token issued by the relay so later runs
// can prove ownership of the device id.
func SaveSessionToken(ctx context.Context, repo settings.Repository, token string) error {
	return repo.Set(ctx, keySessionToken, token)
}
