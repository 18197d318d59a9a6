package devices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/dbx"
	"github.com/dmarkelov/notesync/internal/relay/models"
)

// PostgresRepository implements Repository over dbx.DBTX (satisfied by
// *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the device or refreshes name and last_seen on conflict.
func (r *PostgresRepository) Upsert(ctx context.Context, device *models.Device) error {
	query := `
		INSERT INTO devices (id, name, last_seen)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, last_seen = excluded.last_seen
	`
	if _, err := r.db.ExecContext(ctx, query, device.ID, device.Name, device.LastSeen); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Get returns a device by id. If absent, it returns common.ErrNotFound.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	query := `
		SELECT id, name, last_seen
		FROM devices
		WHERE id = $1
	`
	device := &models.Device{}
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&device.ID, &device.Name, &device.LastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return device, nil
}
