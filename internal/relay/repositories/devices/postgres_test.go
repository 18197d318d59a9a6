package devices

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmarkelov/notesync/internal/common"
	"github.com/dmarkelov/notesync/internal/relay/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestUpsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+devices\s*\(id,\s*name,\s*last_seen\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*ON\s+CONFLICT\s*\(id\)\s*DO\s+UPDATE.*$`

	seen := time.Now()
	mock.ExpectExec(q).
		WithArgs("dev-1", "laptop", seen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), &models.Device{ID: "dev-1", Name: "laptop", LastSeen: seen})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT\s+INTO\s+devices`).
		WillReturnError(errors.New("db down"))

	err := repo.Upsert(context.Background(), &models.Device{ID: "dev-1", Name: "laptop"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestGet_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	seen := time.Now()
	rows := sqlmock.NewRows([]string{"id", "name", "last_seen"}).
		AddRow("dev-1", "laptop", seen)
	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*last_seen\s+FROM\s+devices\s+WHERE\s+id\s*=\s*\$1`).
		WithArgs("dev-1").
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), "dev-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ID != "dev-1" || got.Name != "laptop" {
		t.Fatalf("unexpected device: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT\s+id,\s*name,\s*last_seen\s+FROM\s+devices`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
