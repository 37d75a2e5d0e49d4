package pipeline

import (
	"encoding/json"

	"confirmation-backend/internal/scoring"
)

// Route is the triage decision for a processed document.
type Route string

const (
	// RouteAutoValid books the document without human involvement.
	RouteAutoValid Route = "AUTO_VALID"
	// RouteDone finishes processing but leaves the document unreviewed.
	RouteDone Route = "DONE_UNREVIEWED"
	// RouteReview escalates the document into the human review queue.
	RouteReview Route = "NEEDS_REVIEW"
)

// Result is the outcome of one pipeline run. It is created once per run and
// not mutated afterwards.
type Result struct {
	Success  bool   `json:"success"`
	Filename string `json:"filename"`
	Error    string `json:"error,omitempty"`

	RawJSON       json.RawMessage `json:"rawJson,omitempty"`
	ValidatedJSON json.RawMessage `json:"validatedJson,omitempty"`

	ScoreCards   []scoring.ScoreCard `json:"scoreCards,omitempty"`
	InitialScore int                 `json:"initialScore"`
	FinalScore   int                 `json:"finalScore"`

	SchemaRepairAttempted   bool `json:"schemaRepairAttempted"`
	SchemaRepairSuccess     bool `json:"schemaRepairSuccess"`
	BusinessRepairAttempted bool `json:"businessRepairAttempted"`
	BusinessRepairSuccess   bool `json:"businessRepairSuccess"`

	NeedsManualReview bool  `json:"needsManualReview"`
	Route             Route `json:"route"`

	FileSizeBytes int  `json:"fileSizeBytes"`
	PageCount     int  `json:"pageCount"`
	IsScanned     bool `json:"isScanned"`
}
