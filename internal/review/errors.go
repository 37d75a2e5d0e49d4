package review

import "errors"

var (
	// ErrNotFound means the document or annotation does not exist.
	ErrNotFound = errors.New("not found")
	// ErrClaimConflict means another reviewer holds a live claim.
	ErrClaimConflict = errors.New("document claimed by another reviewer")
	// ErrVersionConflict means the expected version is stale.
	ErrVersionConflict = errors.New("version conflict")
	// ErrInvalidTransition means the requested status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)
