package files

import (
	"context"

	"github.com/dmarkelov/notesync/internal/client/models"
)

// Repository persists the local file index so deletions and edits that
// happen while the client is stopped can be detected on the next run.
type Repository interface {
	Upsert(ctx context.Context, record *models.FileRecord) error
	GetAll(ctx context.Context) ([]*models.FileRecord, error)
	Delete(ctx context.Context, path string) error
}
