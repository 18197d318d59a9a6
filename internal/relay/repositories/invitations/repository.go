// Package invitations declares the relay-side repository contract for
// invitation keys.
package invitations

import (
	"context"
	"time"

	"github.com/dmarkelov/notesync/internal/relay/models"
)

// Repository defines operations over invitation keys. Redeem is the
// single-use gate: implementations must consume atomically so two
// concurrent redemptions of the same key cannot both succeed.
type Repository interface {
	// Create stores a fresh invitation key.
	Create(ctx context.Context, invitation *models.Invitation) error

	// Redeem atomically consumes a valid, non-expired key and returns
	// it. It returns common.ErrNotFound for unknown keys,
	// common.ErrKeyConsumed for already consumed ones and
	// common.ErrKeyExpired for expired ones.
	Redeem(ctx context.Context, key string, now time.Time) (*models.Invitation, error)

	// DeleteExpired removes keys whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) error
}
