// Package documents is the intake surface: it stores uploaded confirmation
// files in the object store, registers them in the review queue at status
// NEW, and triggers processing.
package documents

import (
	"context"
	"errors"
	"io"
	"strings"

	"confirmation-backend/internal/review"
	"confirmation-backend/internal/shared/storage/object"
)

// ErrInvalidInput flags rejected caller input.
var ErrInvalidInput = errors.New("invalid input")

// Trigger starts processing for a queued document. Implemented by the SQS
// publisher in production and by an inline processor in tests and
// database-less setups.
type Trigger interface {
	Trigger(ctx context.Context, documentID string) error
}

// Service contains intake business logic.
type Service struct {
	Store   object.ObjectStore
	Review  *review.Service
	Trigger Trigger
}

// allowedExtensions mirrors the input gate; rejecting early saves a
// round-trip through storage for files the pipeline would bounce anyway.
var allowedExtensions = map[string]struct{}{
	".pdf": {}, ".jpg": {}, ".jpeg": {}, ".png": {},
}

// Upload saves the file bytes and creates the review-queue entry.
func (s *Service) Upload(ctx context.Context, uploader, fileName string, r io.Reader) (review.Document, error) {
	if fileName == "" {
		return review.Document{}, ErrInvalidInput
	}
	if _, ok := allowedExtensions[extensionOf(fileName)]; !ok {
		return review.Document{}, ErrInvalidInput
	}

	storageKey, _, _, err := s.Store.Save(ctx, uploader, fileName, r)
	if err != nil {
		return review.Document{}, err
	}

	return s.Review.CreateEntry(ctx, fileName, storageKey)
}

// Process triggers processing for an existing queue document.
func (s *Service) Process(ctx context.Context, documentID string) error {
	if documentID == "" {
		return ErrInvalidInput
	}
	if s.Trigger == nil {
		return errors.New("processing trigger not configured")
	}
	// Existence check up front so callers get a 404 instead of a silently
	// dropped queue message.
	if _, err := s.Review.Get(ctx, documentID); err != nil {
		return err
	}
	return s.Trigger.Trigger(ctx, documentID)
}

func extensionOf(fileName string) string {
	idx := strings.LastIndex(fileName, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(fileName[idx:])
}
