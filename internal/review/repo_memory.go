package review

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryRepo keeps the queue in memory and is safe for concurrent use. It
// backs tests and database-less development setups.
type MemoryRepo struct {
	mu          sync.Mutex
	docs        map[string]Document
	annotations map[string][]Annotation

	// now is overridable in tests to control claim expiry.
	now func() time.Time
}

// NewMemoryRepo constructs an empty MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		docs:        make(map[string]Document),
		annotations: make(map[string][]Annotation),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create stores the document.
func (r *MemoryRepo) Create(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc
	return nil
}

// GetByID returns a document by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// List returns documents newest-first, optionally filtered by status.
func (r *MemoryRepo) List(ctx context.Context, status string, limit, offset int) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	r.mu.Lock()
	docs := make([]Document, 0, len(r.docs))
	for _, doc := range r.docs {
		if status == "" || doc.Status == status {
			docs = append(docs, doc)
		}
	}
	r.mu.Unlock()

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	if offset >= len(docs) {
		return []Document{}, nil
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return docs[offset:end], nil
}

// SetStatus advances the lifecycle and stores the processing outcome.
func (r *MemoryRepo) SetStatus(ctx context.Context, id, status string, score int, result json.RawMessage, errorMessage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	if !CanTransition(doc.Status, status) {
		return ErrInvalidTransition
	}
	doc.Status = status
	doc.Score = score
	if result != nil {
		doc.ResultJSON = result
	}
	doc.ErrorMessage = errorMessage
	doc.UpdatedAt = r.now()
	r.docs[id] = doc
	return nil
}

// Claim takes or renews the reviewer's lease.
func (r *MemoryRepo) Claim(ctx context.Context, id, user string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	now := r.now()
	if doc.Claimed(now) && doc.ClaimedBy != user {
		return Document{}, ErrClaimConflict
	}
	expires := now.Add(ClaimTTL)
	doc.ClaimedBy = user
	doc.ClaimExpiresAt = &expires
	doc.UpdatedAt = now
	r.docs[id] = doc
	return doc, nil
}

// Release clears the user's own claim; foreign releases are no-ops.
func (r *MemoryRepo) Release(ctx context.Context, id, user string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return ErrNotFound
	}
	if doc.ClaimedBy != user {
		return nil
	}
	doc.ClaimedBy = ""
	doc.ClaimExpiresAt = nil
	doc.UpdatedAt = r.now()
	r.docs[id] = doc
	return nil
}

// SaveAnnotation is the mutex-guarded check-and-set counterpart of the SQL
// transaction in PGRepo.
func (r *MemoryRepo) SaveAnnotation(ctx context.Context, a Annotation, expectedVersion int) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[a.DocumentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	if doc.Version != expectedVersion {
		return Document{}, ErrVersionConflict
	}
	doc.Version++
	doc.UpdatedAt = r.now()
	r.docs[a.DocumentID] = doc

	a.Version = doc.Version
	if a.CreatedAt.IsZero() {
		a.CreatedAt = doc.UpdatedAt
	}
	r.annotations[a.DocumentID] = append(r.annotations[a.DocumentID], a)
	return doc, nil
}

// LatestAnnotation returns the newest annotation for a document.
func (r *MemoryRepo) LatestAnnotation(ctx context.Context, documentID string) (Annotation, error) {
	if err := ctx.Err(); err != nil {
		return Annotation{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	anns := r.annotations[documentID]
	if len(anns) == 0 {
		return Annotation{}, ErrNotFound
	}
	return anns[len(anns)-1], nil
}

var _ Repo = (*MemoryRepo)(nil)
