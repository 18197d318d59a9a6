package peers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/dbx"
)

type SqliteRepository struct {
	db dbx.DBTX
}

func NewSqliteRepository(db dbx.DBTX) *SqliteRepository {
	return &SqliteRepository{db: db}
}

func (r *SqliteRepository) Upsert(ctx context.Context, peer *models.Peer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO peers (id, name, trusted, persistent, last_seen) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, trusted = excluded.trusted,
		 persistent = excluded.persistent, last_seen = excluded.last_seen`,
		peer.ID, peer.Name, peer.Trusted, peer.Persistent, peer.LastSeen.UnixMilli())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SqliteRepository) Get(ctx context.Context, id string) (*models.Peer, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT id, name, trusted, persistent, last_seen FROM peers WHERE id = ?", id)
	peer, err := scanPeer(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return peer, nil
}

func (r *SqliteRepository) GetAll(ctx context.Context) ([]*models.Peer, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, trusted, persistent, last_seen FROM peers ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Peer
	for rows.Next() {
		peer, err := scanPeer(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, peer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SqliteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM peers WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SqliteRepository) DeleteNonPersistent(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM peers WHERE persistent = 0")
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanPeer(scan func(dest ...any) error) (*models.Peer, error) {
	var peer models.Peer
	var lastSeen int64
	if err := scan(&peer.ID, &peer.Name, &peer.Trusted, &peer.Persistent, &lastSeen); err != nil {
		return nil, err
	}
	peer.LastSeen = time.UnixMilli(lastSeen)
	return &peer, nil
}

var _ Repository = (*SqliteRepository)(nil)
