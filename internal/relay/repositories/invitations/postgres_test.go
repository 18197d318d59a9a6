package invitations

import (
	"context"
	"database/sql"
	"errors"
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

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(10 * time.Minute)
	mock.ExpectExec(`INSERT\s+INTO\s+invitations\s*\(key,\s*device_id,\s*expires_at,\s*consumed\)`).
		WithArgs("ABCD2345", "dev-1", expires).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.Invitation{
		Key: "ABCD2345", DeviceID: "dev-1", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestRedeem_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	expires := now.Add(time.Minute)
	rows := sqlmock.NewRows([]string{"device_id", "expires_at"}).AddRow("dev-1", expires)
	mock.ExpectQuery(`UPDATE\s+invitations\s+SET\s+consumed\s*=\s*true`).
		WithArgs("ABCD2345", now).
		WillReturnRows(rows)

	got, err := repo.Redeem(context.Background(), "ABCD2345", now)
	if err != nil {
		t.Fatalf("Redeem error: %v", err)
	}
	if got.DeviceID != "dev-1" || !got.Consumed {
		t.Fatalf("unexpected invitation: %+v", got)
	}
}

func TestRedeem_Unknown(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`UPDATE\s+invitations\s+SET\s+consumed\s*=\s*true`).
		WithArgs("NOPE2345", now).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT\s+expires_at,\s*consumed\s+FROM\s+invitations`).
		WithArgs("NOPE2345").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Redeem(context.Background(), "NOPE2345", now)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedeem_Consumed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`UPDATE\s+invitations\s+SET\s+consumed\s*=\s*true`).
		WithArgs("ABCD2345", now).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT\s+expires_at,\s*consumed\s+FROM\s+invitations`).
		WithArgs("ABCD2345").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at", "consumed"}).AddRow(now.Add(time.Minute), true))

	_, err := repo.Redeem(context.Background(), "ABCD2345", now)
	if !errors.Is(err, common.ErrKeyConsumed) {
		t.Fatalf("expected ErrKeyConsumed, got %v", err)
	}
}

func TestRedeem_Expired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`UPDATE\s+invitations\s+SET\s+consumed\s*=\s*true`).
		WithArgs("ABCD2345", now).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT\s+expires_at,\s*consumed\s+FROM\s+invitations`).
		WithArgs("ABCD2345").
		WillReturnRows(sqlmock.NewRows([]string{"expires_at", "consumed"}).AddRow(now.Add(-time.Minute), false))

	_, err := repo.Redeem(context.Background(), "ABCD2345", now)
	if !errors.Is(err, common.ErrKeyExpired) {
		t.Fatalf("expected ErrKeyExpired, got %v", err)
	}
}

func TestDeleteExpired_Postgres(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`DELETE\s+FROM\s+invitations\s+WHERE\s+expires_at\s*<=\s*\$1`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	if err := repo.DeleteExpired(context.Background(), now); err != nil {
		t.Fatalf("DeleteExpired error: %v", err)
	}
}
