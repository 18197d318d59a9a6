package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dmarkelov/notesync/internal/client/migrations"
	"github.com/dmarkelov/notesync/internal/client/repositories/files"
	"github.com/dmarkelov/notesync/internal/client/repositories/peers"
	"github.com/dmarkelov/notesync/internal/client/repositories/settings"
)

type SqliteRepositoryManager struct {
	db       *sql.DB
	settings *settings.SqliteRepository
	peers    *peers.SqliteRepository
	files    *files.SqliteRepository
}

func NewSqliteRepositoryManager(ctx context.Context, path string) (*SqliteRepositoryManager, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error setting dialect: %w", err)
	}
	if err := goose.UpContext(ctx, conn, "."); err != nil {
		conn.Close()
		return nil, fmt.Errorf("error running migrations: %w", err)
	}

	return &SqliteRepositoryManager{
		db:       conn,
		settings: settings.NewSqliteRepository(conn),
		peers:    peers.NewSqliteRepository(conn),
		files:    files.NewSqliteRepository(conn),
	}, nil
}

func (m *SqliteRepositoryManager) Settings() settings.Repository { return m.settings }
func (m *SqliteRepositoryManager) Peers() peers.Repository       { return m.peers }
func (m *SqliteRepositoryManager) Files() files.Repository       { return m.files }
func (m *SqliteRepositoryManager) Close() error                  { return m.db.Close() }

var _ RepositoryManager = (*SqliteRepositoryManager)(nil)
