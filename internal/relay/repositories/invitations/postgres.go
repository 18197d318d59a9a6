package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, invitation *models.Invitation) error {
	query := `
		INSERT INTO invitations (key, device_id, expires_at, consumed)
		VALUES ($1, $2, $3, false)
	`
	if _, err := r.db.ExecContext(ctx, query, invitation.Key, invitation.DeviceID, invitation.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Redeem consumes the key in a single UPDATE so concurrent redemptions
// cannot both succeed. A follow-up lookup tells unknown, consumed and
// expired keys apart for the caller's error message.
func (r *PostgresRepository) Redeem(ctx context.Context, key string, now time.Time) (*models.Invitation, error) {
	query := `
		UPDATE invitations
		SET consumed = true
		WHERE key = $1 AND consumed = false AND expires_at > $2
		RETURNING device_id, expires_at
	`
	invitation := &models.Invitation{Key: key, Consumed: true}
	err := r.db.QueryRowContext(ctx, query, key, now).Scan(&invitation.DeviceID, &invitation.ExpiresAt)
	if err == nil {
		return invitation, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("db error: %w", err)
	}

	var expiresAt time.Time
	var consumed bool
	check := `SELECT expires_at, consumed FROM invitations WHERE key = $1`
	if err := r.db.QueryRowContext(ctx, check, key).Scan(&expiresAt, &consumed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if consumed {
		return nil, common.ErrKeyConsumed
	}
	return nil, common.ErrKeyExpired
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	query := `
		DELETE FROM invitations
		WHERE expires_at <= $1
	`
	if _, err := r.db.ExecContext(ctx, query, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
