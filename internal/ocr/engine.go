// Package ocr is the boundary to the external vision/OCR service and the
// input gate that rejects unusable files before any paid API call.
package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Engine extracts structured text from a document. schema, when non-nil, is
// passed through as a structured-output constraint; hints carry per-supplier
// layout coordinates when a template is known.
type Engine interface {
	Extract(ctx context.Context, source []byte, filename string, schema json.RawMessage, hints json.RawMessage) (string, error)
}

// ErrAuth marks an authentication/authorization failure against the OCR
// service. It is fatal: batch processing must halt instead of burning through
// the queue with a broken credential.
var ErrAuth = errors.New("ocr auth failure")

// IsFatal reports whether err must stop automatic processing entirely.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth)
}

// IsRetryable reports whether err is a transient service condition worth a
// backoff and retry (rate limits, 5xx, network timeouts).
func IsRetryable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"http status 429", "resource_exhausted", "quota",
		"http status 5", "internal server error", "service unavailable",
		"timeout", "connection reset", "connection refused", "broken pipe",
		"tls handshake timeout", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classifyStatus converts an HTTP error status into the error taxonomy.
func classifyStatus(status int, body string) error {
	if status == 401 || status == 403 {
		return fmt.Errorf("%w: http status %d: %s", ErrAuth, status, truncate(body, 300))
	}
	return fmt.Errorf("ocr http status %d: %s", status, truncate(body, 300))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
