package review

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newPGRepoMock(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	repo := NewPGRepo(db)
	repo.now = func() time.Time { return time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC) }
	return repo, mock
}

func documentRows(version int) *sqlmock.Rows {
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	return sqlmock.NewRows([]string{
		"id", "filename", "storage_key", "status", "score", "result_json",
		"error_message", "version", "claimed_by", "claim_expires_at",
		"created_at", "updated_at",
	}).AddRow("doc-1", "doc-1.pdf", "orig/doc-1.pdf", StatusNeedsReview, 72,
		[]byte(`{"documents":[]}`), nil, version, nil, nil, now, now)
}

func TestPGRepoSaveAnnotationCommits(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE review_documents").
		WithArgs(sqlmock.AnyArg(), "doc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO annotations").
		WithArgs("ann-1", "doc-1", "alice", []byte(`{"netTotal":450}`), 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT id, filename").
		WithArgs("doc-1").
		WillReturnRows(documentRows(2))
	mock.ExpectCommit()

	a := Annotation{ID: "ann-1", DocumentID: "doc-1", Author: "alice", Fields: json.RawMessage(`{"netTotal":450}`)}
	doc, err := repo.SaveAnnotation(context.Background(), a, 1)
	if err != nil {
		t.Fatalf("SaveAnnotation: %v", err)
	}
	if doc.Version != 2 {
		t.Errorf("Version = %d, want 2", doc.Version)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSaveAnnotationVersionConflictRollsBack(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE review_documents").
		WithArgs(sqlmock.AnyArg(), "doc-1", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	a := Annotation{ID: "ann-1", DocumentID: "doc-1", Author: "alice", Fields: json.RawMessage(`{}`)}
	if _, err := repo.SaveAnnotation(context.Background(), a, 1); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoSaveAnnotationUnknownDocument(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE review_documents").
		WithArgs(sqlmock.AnyArg(), "missing", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	a := Annotation{ID: "ann-1", DocumentID: "missing", Author: "alice", Fields: json.RawMessage(`{}`)}
	if _, err := repo.SaveAnnotation(context.Background(), a, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoClaimConflict(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectExec("UPDATE review_documents").
		WithArgs("bob", sqlmock.AnyArg(), sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT id, filename").
		WithArgs("doc-1").
		WillReturnRows(documentRows(1))

	if _, err := repo.Claim(context.Background(), "doc-1", "bob"); !errors.Is(err, ErrClaimConflict) {
		t.Fatalf("err = %v, want ErrClaimConflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoClaimTreatsNullExpiryAsUnclaimed(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	// A claimed_by without an expiry is a stale row, not a live lease; the
	// predicate must hand the claim over like the memory repo does.
	mock.ExpectExec(`claim_expires_at IS NULL\s+OR claim_expires_at <=`).
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, filename").
		WithArgs("doc-1").
		WillReturnRows(documentRows(1))

	if _, err := repo.Claim(context.Background(), "doc-1", "alice"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}

func TestPGRepoClaimTakesLease(t *testing.T) {
	repo, mock := newPGRepoMock(t)

	mock.ExpectExec("UPDATE review_documents").
		WithArgs("alice", sqlmock.AnyArg(), sqlmock.AnyArg(), "doc-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, filename").
		WithArgs("doc-1").
		WillReturnRows(documentRows(1))

	if _, err := repo.Claim(context.Background(), "doc-1", "alice"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("ExpectationsWereMet: %v", err)
	}
}
