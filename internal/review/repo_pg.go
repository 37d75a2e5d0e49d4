package review

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB

	// now is overridable in tests.
	now func() time.Time
}

// NewPGRepo constructs a PGRepo.
func NewPGRepo(db *sql.DB) *PGRepo {
	return &PGRepo{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

const documentColumns = `id, filename, storage_key, status, score, result_json, error_message, version, claimed_by, claim_expires_at, created_at, updated_at`

// Create inserts a new queue document.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO review_documents (
    id,
    filename,
    storage_key,
    status,
    score,
    result_json,
    error_message,
    version,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	var result any
	if doc.ResultJSON != nil {
		result = []byte(doc.ResultJSON)
	}
	var errorMessage sql.NullString
	if doc.ErrorMessage != "" {
		errorMessage = sql.NullString{String: doc.ErrorMessage, Valid: true}
	}
	_, err := r.DB.ExecContext(
		ctx,
		query,
		doc.ID,
		doc.Filename,
		doc.StorageKey,
		doc.Status,
		doc.Score,
		result,
		errorMessage,
		doc.Version,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

// GetByID fetches a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Document, error) {
	const query = `
SELECT ` + documentColumns + `
FROM review_documents
WHERE id = $1
LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, id))
}

// List returns documents newest-first, optionally filtered by status.
func (r *PGRepo) List(ctx context.Context, status string, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `
SELECT ` + documentColumns + `
FROM review_documents
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	args := []any{limit, offset}
	if status != "" {
		query = `
SELECT ` + documentColumns + `
FROM review_documents
WHERE status = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
		args = []any{status, limit, offset}
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		doc, err := r.scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// SetStatus advances the lifecycle and stores the processing outcome. The
// transition check runs in Go after reading the current row; worker and API
// are the only writers and both go through this method.
func (r *PGRepo) SetStatus(ctx context.Context, id, status string, score int, result json.RawMessage, errorMessage string) error {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !CanTransition(current.Status, status) {
		return ErrInvalidTransition
	}

	const query = `
UPDATE review_documents
SET status = $1,
    score = $2,
    result_json = COALESCE($3, result_json),
    error_message = $4,
    updated_at = $5
WHERE id = $6`

	var resultArg any
	if result != nil {
		resultArg = []byte(result)
	}
	var errArg sql.NullString
	if errorMessage != "" {
		errArg = sql.NullString{String: errorMessage, Valid: true}
	}
	_, err = r.DB.ExecContext(ctx, query, status, score, resultArg, errArg, r.now(), id)
	return err
}

// Claim takes or renews the reviewer's lease in a single conditional update.
func (r *PGRepo) Claim(ctx context.Context, id, user string) (Document, error) {
	const query = `
UPDATE review_documents
SET claimed_by = $1, claim_expires_at = $2, updated_at = $3
WHERE id = $4
  AND (claimed_by IS NULL
       OR claimed_by = $1
       OR claim_expires_at IS NULL
       OR claim_expires_at <= $3)`

	now := r.now()
	res, err := r.DB.ExecContext(ctx, query, user, now.Add(ClaimTTL), now, id)
	if err != nil {
		return Document{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if affected == 0 {
		// Either missing or claimed by someone else; one read decides.
		if _, err := r.GetByID(ctx, id); err != nil {
			return Document{}, err
		}
		return Document{}, ErrClaimConflict
	}
	return r.GetByID(ctx, id)
}

// Release clears the user's own claim; foreign releases are no-ops.
func (r *PGRepo) Release(ctx context.Context, id, user string) error {
	const query = `
UPDATE review_documents
SET claimed_by = NULL, claim_expires_at = NULL, updated_at = $1
WHERE id = $2 AND claimed_by = $3`

	res, err := r.DB.ExecContext(ctx, query, r.now(), id, user)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// SaveAnnotation inserts the annotation and bumps the document version in one
// transaction. The WHERE version = $expected predicate is the authoritative
// concurrency guard; claims are only advisory.
func (r *PGRepo) SaveAnnotation(ctx context.Context, a Annotation, expectedVersion int) (Document, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	now := r.now()
	const bump = `
UPDATE review_documents
SET version = version + 1, updated_at = $1
WHERE id = $2 AND version = $3`
	res, err := tx.ExecContext(ctx, bump, now, a.DocumentID, expectedVersion)
	if err != nil {
		return Document{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM review_documents WHERE id = $1)`, a.DocumentID).Scan(&exists); err != nil {
			return Document{}, err
		}
		if !exists {
			return Document{}, ErrNotFound
		}
		return Document{}, ErrVersionConflict
	}

	const insert = `
INSERT INTO annotations (id, document_id, author, fields, version, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if _, err := tx.ExecContext(ctx, insert, a.ID, a.DocumentID, a.Author, []byte(a.Fields), expectedVersion+1, a.CreatedAt); err != nil {
		return Document{}, err
	}

	const fetch = `
SELECT ` + documentColumns + `
FROM review_documents
WHERE id = $1
LIMIT 1`
	doc, err := r.scanOne(tx.QueryRowContext(ctx, fetch, a.DocumentID))
	if err != nil {
		return Document{}, err
	}

	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// LatestAnnotation returns the newest annotation for a document.
func (r *PGRepo) LatestAnnotation(ctx context.Context, documentID string) (Annotation, error) {
	const query = `
SELECT id, document_id, author, fields, version, created_at
FROM annotations
WHERE document_id = $1
ORDER BY created_at DESC, version DESC
LIMIT 1`

	var a Annotation
	var fields []byte
	err := r.DB.QueryRowContext(ctx, query, documentID).Scan(
		&a.ID,
		&a.DocumentID,
		&a.Author,
		&fields,
		&a.Version,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Annotation{}, ErrNotFound
		}
		return Annotation{}, err
	}
	a.Fields = json.RawMessage(fields)
	return a, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PGRepo) scanOne(row rowScanner) (Document, error) {
	var doc Document
	var result []byte
	var errorMessage sql.NullString
	var claimedBy sql.NullString
	var claimExpires sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.StorageKey,
		&doc.Status,
		&doc.Score,
		&result,
		&errorMessage,
		&doc.Version,
		&claimedBy,
		&claimExpires,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if result != nil {
		doc.ResultJSON = json.RawMessage(result)
	}
	if errorMessage.Valid {
		doc.ErrorMessage = errorMessage.String
	}
	if claimedBy.Valid {
		doc.ClaimedBy = claimedBy.String
	}
	if claimExpires.Valid {
		doc.ClaimExpiresAt = &claimExpires.Time
	}
	return doc, nil
}

var _ Repo = (*PGRepo)(nil)
