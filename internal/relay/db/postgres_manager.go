package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmarkelov/notesync/internal/relay/migrations"
	"github.com/dmarkelov/notesync/internal/relay/repositories/devices"
	"github.com/dmarkelov/notesync/internal/relay/repositories/invitations"
)

type PostgresRepositoryManager struct {
	db          *sql.DB
	devices     devices.Repository
	invitations invitations.Repository
}

func (m *PostgresRepositoryManager) Devices() devices.Repository {
	return m.devices
}

func (m *PostgresRepositoryManager) Invitations() invitations.Repository {
	return m.invitations
}

func (m *PostgresRepositoryManager) Close(_ context.Context) error {
	return m.db.Close()
}

func (m *PostgresRepositoryManager) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	return goose.UpContext(ctx, m.db, ".")
}

func NewPostgresRepositoryManager(ctx context.Context, dsn string) (RepositoryManager, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	m := &PostgresRepositoryManager{
		db:          db,
		devices:     devices.NewPostgresRepository(db),
		invitations: invitations.NewPostgresRepository(db),
	}

	if err := m.runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return m, nil
}
