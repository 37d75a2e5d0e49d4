// Package judge repairs broken extraction JSON by re-analyzing the original
// document with a correction model. A Healer call is stateless; callers
// decide how often to invoke it (the pipeline allows one schema-repair and
// one business-repair attempt per document, never chained).
package judge

import (
	"context"
	"encoding/json"

	"confirmation-backend/internal/confirmation"
)

// Healer attempts to produce a corrected replacement for a broken payload.
// A nil result without error means the service answered but could not help;
// any error must be treated by callers as "repair not possible this round",
// never as pipeline-fatal.
type Healer interface {
	Heal(ctx context.Context, source []byte, filename string, broken json.RawMessage, errs []confirmation.FieldError, hints json.RawMessage) (json.RawMessage, error)
}
