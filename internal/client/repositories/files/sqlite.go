package files

import (
	"context"
	"fmt"

	"github.com/dmarkelov/notesync/internal/client/models"
	"github.com/dmarkelov/notesync/internal/dbx"
)

type SqliteRepository struct {
	db dbx.DBTX
}

func NewSqliteRepository(db dbx.DBTX) *SqliteRepository {
	return &SqliteRepository{db: db}
}

func (r *SqliteRepository) Upsert(ctx context.Context, record *models.FileRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO files (path, hash, mtime, size) VALUES (?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, mtime = excluded.mtime, size = excluded.size`,
		record.Path, record.Hash, record.Mtime, record.Size)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SqliteRepository) GetAll(ctx context.Context) ([]*models.FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT path, hash, mtime, size FROM files")
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		var record models.FileRecord
		if err := rows.Scan(&record.Path, &record.Hash, &record.Mtime, &record.Size); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *SqliteRepository) Delete(ctx context.Context, path string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM files WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

var _ Repository = (*SqliteRepository)(nil)
