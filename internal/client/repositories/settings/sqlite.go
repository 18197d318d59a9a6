package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/dbx"
)

type SqliteRepository struct {
	db dbx.DBTX
}

func NewSqliteRepository(db dbx.DBTX) *SqliteRepository {
	return &SqliteRepository{db: db}
}

func (r *SqliteRepository) Get(ctx context.Context, key string) (string, error) {
	row := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key)

	var value string
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}

	return value, nil
}

func (r *SqliteRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

var _ Repository = (*SqliteRepository)(nil)
