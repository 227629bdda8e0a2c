package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hitoshi/matchday/internal/model"
)

func TestPostgresSessionRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()
	session := &model.Session{ID: "sid", UserID: 7, ExpiresAt: now.Add(10 * time.Minute), CreatedAt: now}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions (id, data, expires_at, created_at)`)).
		WithArgs("sid", []byte(`{"user_id":7}`), session.ExpiresAt, session.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := NewPostgresSessionRepo(db).Create(context.Background(), session, []byte(`{"user_id":7}`)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgresSessionRepo_FindData_ExpiredOrMissing(t *testing.T) {
	db, mock := newMockDB(t)

	// 期限切れはSQL側の expires_at > now() で除外される
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM sessions WHERE id = $1 AND expires_at > now()`)).
		WithArgs("old").
		WillReturnRows(sqlmock.NewRows([]string{"data"}))

	data, err := NewPostgresSessionRepo(db).FindData(context.Background(), "old")
	if err != nil {
		t.Fatalf("FindData() error = %v", err)
	}
	if data != nil {
		t.Errorf("expected nil data, got %s", data)
	}
	expectationsMet(t, mock)
}

func TestPostgresSessionRepo_FindData_Found(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM sessions`)).
		WithArgs("sid").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow([]byte(`{"user_id":7}`)))

	data, err := NewPostgresSessionRepo(db).FindData(context.Background(), "sid")
	if err != nil {
		t.Fatalf("FindData() error = %v", err)
	}
	if string(data) != `{"user_id":7}` {
		t.Errorf("data = %s", data)
	}
	expectationsMet(t, mock)
}

func TestPostgresSessionRepo_UpdateDataAndDelete(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresSessionRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET data = $1 WHERE id = $2`)).
		WithArgs([]byte(`{}`), "sid").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE id = $1`)).
		WithArgs("sid").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateData(context.Background(), "sid", []byte(`{}`)); err != nil {
		t.Fatalf("UpdateData() error = %v", err)
	}
	if err := repo.DeleteByID(context.Background(), "sid"); err != nil {
		t.Fatalf("DeleteByID() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestPostgresSessionRepo_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE expires_at <= $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewPostgresSessionRepo(db).DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 3 {
		t.Errorf("deleted = %d, want 3", n)
	}
	expectationsMet(t, mock)
}
