// Package review is the human review queue: documents move through a status
// lifecycle while reviewers claim them, annotate extraction results, and
// release them. Claims are advisory leases; the version check on annotations
// is the authoritative write guard.
package review

import (
	"encoding/json"
	"time"
)

// Document status lifecycle. ERROR is reachable from every state.
const (
	StatusNew         = "NEW"
	StatusOCRRunning  = "OCR_RUNNING"
	StatusOCRDone     = "OCR_DONE"
	StatusNeedsReview = "NEEDS_REVIEW"
	StatusValid       = "VALID"
	StatusExported    = "EXPORTED"
	StatusError       = "ERROR"
)

// ClaimTTL is how long a reviewer's claim holds without renewal.
const ClaimTTL = 15 * time.Minute

// transitions lists the allowed forward edges of the lifecycle.
var transitions = map[string][]string{
	StatusNew:         {StatusOCRRunning},
	StatusOCRRunning:  {StatusOCRDone, StatusNeedsReview, StatusValid},
	StatusOCRDone:     {StatusNeedsReview, StatusValid, StatusExported},
	StatusNeedsReview: {StatusValid},
	StatusValid:       {StatusExported},
}

// CanTransition reports whether a status change is allowed. ERROR is always
// reachable; re-processing out of ERROR restarts at OCR_RUNNING.
func CanTransition(from, to string) bool {
	if to == StatusError {
		return true
	}
	if from == StatusError {
		return to == StatusOCRRunning
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Document is one entry in the review queue.
type Document struct {
	ID       string
	Filename string
	// StorageKey locates the original bytes in the object store.
	StorageKey string
	Status     string
	Score      int
	// ResultJSON is the validated extraction payload, nil until processing
	// finished.
	ResultJSON   json.RawMessage
	ErrorMessage string

	// Version increments on every annotation write; readers send it back as
	// the optimistic precondition.
	Version        int
	ClaimedBy      string
	ClaimExpiresAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Claimed reports whether the document holds a live claim at the given time.
func (d Document) Claimed(now time.Time) bool {
	return d.ClaimedBy != "" && d.ClaimExpiresAt != nil && d.ClaimExpiresAt.After(now)
}

// Annotation is one immutable correction record. Annotations are never
// updated or deleted; the latest row per document wins.
type Annotation struct {
	ID         string
	DocumentID string
	Author     string
	// Fields holds the corrected field values as a JSON object.
	Fields json.RawMessage
	// Version is the document version this annotation produced.
	Version   int
	CreatedAt time.Time
}
