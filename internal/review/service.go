package review

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Service contains the review-queue business logic.
type Service struct {
	Repo Repo
}

// ErrInvalidInput flags rejected caller input.
var ErrInvalidInput = errors.New("invalid input")

// CreateEntry registers a freshly uploaded document at status NEW.
func (s *Service) CreateEntry(ctx context.Context, filename, storageKey string) (Document, error) {
	if filename == "" || storageKey == "" {
		return Document{}, ErrInvalidInput
	}
	now := time.Now().UTC()
	doc := Document{
		ID:         uuid.NewString(),
		Filename:   filename,
		StorageKey: storageKey,
		Status:     StatusNew,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Get returns one queue document.
func (s *Service) Get(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, id)
}

// List returns queue documents, optionally filtered by status.
func (s *Service) List(ctx context.Context, status string, limit, offset int) ([]Document, error) {
	return s.Repo.List(ctx, status, limit, offset)
}

// Claim takes or renews the reviewer's lease on a document.
func (s *Service) Claim(ctx context.Context, id, user string) (Document, error) {
	if id == "" || user == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.Claim(ctx, id, user)
}

// Release gives the reviewer's claim back.
func (s *Service) Release(ctx context.Context, id, user string) error {
	if id == "" || user == "" {
		return ErrInvalidInput
	}
	return s.Repo.Release(ctx, id, user)
}

// SaveAnnotation records a correction under the optimistic version check.
func (s *Service) SaveAnnotation(ctx context.Context, documentID, author string, fields json.RawMessage, expectedVersion int) (Document, error) {
	if documentID == "" || author == "" {
		return Document{}, ErrInvalidInput
	}
	if len(fields) == 0 || !json.Valid(fields) {
		return Document{}, ErrInvalidInput
	}
	a := Annotation{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Author:     author,
		Fields:     fields,
	}
	return s.Repo.SaveAnnotation(ctx, a, expectedVersion)
}

// LatestAnnotation returns the newest annotation for a document.
func (s *Service) LatestAnnotation(ctx context.Context, documentID string) (Annotation, error) {
	if documentID == "" {
		return Annotation{}, ErrInvalidInput
	}
	return s.Repo.LatestAnnotation(ctx, documentID)
}
