package review

import (
	"context"
	"encoding/json"
)

// Repo defines persistence operations for the review queue.
type Repo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, id string) (Document, error)
	// List returns documents newest-first, optionally filtered by status.
	List(ctx context.Context, status string, limit, offset int) ([]Document, error)

	// SetStatus advances the lifecycle and stores the processing outcome.
	// Returns ErrInvalidTransition when the lifecycle forbids the change.
	SetStatus(ctx context.Context, id, status string, score int, result json.RawMessage, errorMessage string) error

	// Claim takes or renews the reviewer's lease. Succeeds when the document
	// is unclaimed, the existing claim expired, or the same user claims again;
	// otherwise ErrClaimConflict.
	Claim(ctx context.Context, id, user string) (Document, error)

	// Release clears the user's own claim. Releasing someone else's claim is
	// a silent no-op.
	Release(ctx context.Context, id, user string) error

	// SaveAnnotation inserts the annotation and increments the document
	// version in one atomic step, guarded by expectedVersion.
	SaveAnnotation(ctx context.Context, a Annotation, expectedVersion int) (Document, error)

	// LatestAnnotation returns the newest annotation for a document.
	LatestAnnotation(ctx context.Context, documentID string) (Annotation, error)
}
