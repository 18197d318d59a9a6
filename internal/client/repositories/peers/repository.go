package peers

import (
	"context"

	"github.com/dmarkelov/notesync/internal/client/models"
)

// Repository persists known remote devices and their trust flags.
type Repository interface {
	Upsert(ctx context.Context, peer *models.Peer) error
	Get(ctx context.Context, id string) (*models.Peer, error)
	GetAll(ctx context.Context) ([]*models.Peer, error)
	Delete(ctx context.Context, id string) error
	// DeleteNonPersistent removes session-scoped trust grants. Called
	// once at startup so they do not outlive the run that created them.
	DeleteNonPersistent(ctx context.Context) error
}
