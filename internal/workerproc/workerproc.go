// Package workerproc turns queue messages into pipeline runs and persists
// the outcome on the review queue. Error handling follows the batch
// taxonomy: auth failures halt the worker, retryable service errors back
// off and retry, anything else quarantines the single document.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"confirmation-backend/internal/ocr"
	"confirmation-backend/internal/pipeline"
	"confirmation-backend/internal/queue"
	"confirmation-backend/internal/review"
	"confirmation-backend/internal/shared/metrics"
	"confirmation-backend/internal/shared/storage/object"
	"confirmation-backend/internal/shared/telemetry"
)

// ErrHalt signals that the worker loop must stop entirely. Wrapped around
// OCR auth failures: every further message would fail the same way.
var ErrHalt = errors.New("worker halt requested")

// Runner abstracts the pipeline for tests.
type Runner interface {
	Process(ctx context.Context, source []byte, filename string) (pipeline.Result, error)
}

// Processor executes one document job end to end.
type Processor struct {
	Review review.Repo
	Store  object.ObjectStore
	Runner Runner

	// RetryWait is the fixed backoff between retryable OCR attempts.
	RetryWait time.Duration
	// MaxAttempts bounds retryable OCR attempts per document.
	MaxAttempts int

	// sleep is overridable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewProcessor builds a Processor with production retry settings.
func NewProcessor(repo review.Repo, store object.ObjectStore, runner Runner, retryWait time.Duration) *Processor {
	return &Processor{
		Review:      repo,
		Store:       store,
		Runner:      runner,
		RetryWait:   retryWait,
		MaxAttempts: 3,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ProcessDocument loads the original bytes, runs the pipeline, and advances
// the document's status. A nil return means the job is finished (including
// quarantined documents); a non-nil return leaves the message on the queue,
// and errors.Is(err, ErrHalt) tells the worker to stop polling.
func (p *Processor) ProcessDocument(ctx context.Context, documentID string) error {
	doc, err := p.Review.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document %s: %w", documentID, err)
	}

	if err := p.Review.SetStatus(ctx, documentID, review.StatusOCRRunning, doc.Score, nil, ""); err != nil {
		return fmt.Errorf("mark running %s: %w", documentID, err)
	}

	source, err := p.loadBytes(ctx, doc.StorageKey)
	if err != nil {
		// Storage failures are document-level: quarantine, keep the queue
		// moving.
		p.quarantine(ctx, documentID, "load source: "+err.Error())
		return nil
	}

	started := metrics.NowMillis()
	result, err := p.runWithRetry(ctx, source, doc.Filename)
	if err != nil {
		if ocr.IsFatal(err) {
			telemetry.Error("worker.document.auth_failed", map[string]any{
				"document_id": documentID,
				"error":       err.Error(),
			})
			return fmt.Errorf("%w: %v", ErrHalt, err)
		}
		if ocr.IsRetryable(err) {
			// Attempts exhausted; leave the message for redelivery.
			return fmt.Errorf("process %s: %w", documentID, err)
		}
		p.quarantine(ctx, documentID, err.Error())
		return nil
	}
	metrics.ObserveProcessingDurationMs(metrics.NowMillis() - started)

	return p.persist(ctx, documentID, result)
}

func (p *Processor) loadBytes(ctx context.Context, storageKey string) ([]byte, error) {
	rc, err := p.Store.Open(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// runWithRetry retries retryable OCR service errors with a fixed wait.
func (p *Processor) runWithRetry(ctx context.Context, source []byte, filename string) (pipeline.Result, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.Runner.Process(ctx, source, filename)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ocr.IsFatal(err) || !ocr.IsRetryable(err) {
			return pipeline.Result{}, err
		}
		if attempt == attempts {
			break
		}
		telemetry.Info("worker.document.retry", map[string]any{
			"filename": filename,
			"attempt":  attempt,
			"wait_ms":  p.RetryWait.Milliseconds(),
			"error":    err.Error(),
		})
		if err := sleep(ctx, p.RetryWait); err != nil {
			return pipeline.Result{}, err
		}
	}
	return pipeline.Result{}, lastErr
}

func (p *Processor) persist(ctx context.Context, documentID string, result pipeline.Result) error {
	if !result.Success {
		p.quarantine(ctx, documentID, result.Error)
		return nil
	}

	status := statusForRoute(result.Route)
	payload := result.ValidatedJSON
	if payload == nil {
		payload = result.RawJSON
	}
	if err := p.Review.SetStatus(ctx, documentID, status, result.FinalScore, payload, result.Error); err != nil {
		return fmt.Errorf("persist outcome %s: %w", documentID, err)
	}

	if result.SchemaRepairAttempted || result.BusinessRepairAttempted {
		metrics.IncRepairAttempted()
	}
	if result.SchemaRepairSuccess || result.BusinessRepairSuccess {
		metrics.IncRepairAdopted()
	}
	telemetry.Info("worker.document.processed", map[string]any{
		"document_id": documentID,
		"status":      status,
		"score":       result.FinalScore,
		"route":       string(result.Route),
	})
	return nil
}

func (p *Processor) quarantine(ctx context.Context, documentID, message string) {
	if err := p.Review.SetStatus(ctx, documentID, review.StatusError, 0, nil, message); err != nil {
		telemetry.Error("worker.document.quarantine_failed", map[string]any{
			"document_id": documentID,
			"error":       err.Error(),
		})
		return
	}
	telemetry.Error("worker.document.quarantined", map[string]any{
		"document_id": documentID,
		"error":       message,
	})
}

func statusForRoute(route pipeline.Route) string {
	switch route {
	case pipeline.RouteAutoValid:
		return review.StatusValid
	case pipeline.RouteDone:
		return review.StatusOCRDone
	default:
		return review.StatusNeedsReview
	}
}

// InlineTrigger runs processing synchronously, used when no queue is
// configured.
type InlineTrigger struct {
	Processor *Processor
}

// Trigger processes the document in the calling goroutine.
func (t *InlineTrigger) Trigger(ctx context.Context, documentID string) error {
	return t.Processor.ProcessDocument(ctx, documentID)
}

// QueueTrigger publishes a processing job to the queue.
type QueueTrigger struct {
	Queue queue.Client
}

// Trigger enqueues one document job.
func (t *QueueTrigger) Trigger(ctx context.Context, documentID string) error {
	return t.Queue.Send(ctx, queue.Message{
		DocumentID: documentID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    1,
	})
}

// --- queue message plumbing ---

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{BodyLen: 0, BodySHA: ""}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

// ErrMissingDocumentID indicates a message missing the document id.
type ErrMissingDocumentID struct {
	Meta      MessageMeta
	RequestID string
}

func (e ErrMissingDocumentID) Error() string { return "missing document id" }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	DocumentID string
	RequestID  string
	Err        error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process document"
	}
	return "process document: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if strings.TrimSpace(msg.DocumentID) == "" {
		return msg, meta, ErrMissingDocumentID{Meta: meta, RequestID: msg.RequestID}
	}
	return msg, meta, nil
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, p *Processor, body string) error {
	if p == nil {
		return errors.New("processor not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	if strings.TrimSpace(msg.DocumentID) == "" {
		return ErrMissingDocumentID{Meta: ComputeMeta(body), RequestID: msg.RequestID}
	}

	if err := p.ProcessDocument(ctx, msg.DocumentID); err != nil {
		if errors.Is(err, ErrHalt) {
			return err
		}
		return ErrProcess{DocumentID: msg.DocumentID, RequestID: msg.RequestID, Err: err}
	}
	return nil
}
