package workerproc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"confirmation-backend/internal/ocr"
	"confirmation-backend/internal/pipeline"
	"confirmation-backend/internal/review"
)

// memStore is an in-memory object.ObjectStore for tests.
type memStore struct {
	objects map[string][]byte
}

func (s *memStore) Save(ctx context.Context, userId, fileName string, r io.Reader) (string, int64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", 0, "", err
	}
	key := userId + "/" + fileName
	s.objects[key] = data
	return key, int64(len(data)), "application/octet-stream", nil
}

func (s *memStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	data, ok := s.objects[storageKey]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// stubRunner returns canned results, failing the first failures calls.
type stubRunner struct {
	result   pipeline.Result
	err      error
	failures int
	calls    int
}

func (r *stubRunner) Process(ctx context.Context, source []byte, filename string) (pipeline.Result, error) {
	r.calls++
	if r.err != nil && (r.failures == 0 || r.calls <= r.failures) {
		return pipeline.Result{}, r.err
	}
	return r.result, nil
}

func newTestProcessor(t *testing.T, runner Runner) (*Processor, *review.MemoryRepo) {
	t.Helper()
	repo := review.NewMemoryRepo()
	store := &memStore{objects: map[string][]byte{"orig/doc-1.pdf": []byte("%PDF-fake")}}
	doc := review.Document{
		ID:         "doc-1",
		Filename:   "doc-1.pdf",
		StorageKey: "orig/doc-1.pdf",
		Status:     review.StatusNew,
		Version:    1,
	}
	if err := repo.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	p := NewProcessor(repo, store, runner, time.Second)
	p.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return p, repo
}

func TestProcessDocumentPersistsAutoValid(t *testing.T) {
	runner := &stubRunner{result: pipeline.Result{
		Success:       true,
		FinalScore:    92,
		Route:         pipeline.RouteAutoValid,
		ValidatedJSON: []byte(`{"documents":[]}`),
	}}
	p, repo := newTestProcessor(t, runner)

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != review.StatusValid {
		t.Errorf("Status = %q, want VALID", doc.Status)
	}
	if doc.Score != 92 {
		t.Errorf("Score = %d, want 92", doc.Score)
	}
	if doc.ResultJSON == nil {
		t.Error("ResultJSON should be persisted")
	}
}

func TestProcessDocumentRoutesToReview(t *testing.T) {
	runner := &stubRunner{result: pipeline.Result{
		Success:           true,
		FinalScore:        40,
		Route:             pipeline.RouteReview,
		NeedsManualReview: true,
		RawJSON:           []byte(`{}`),
	}}
	p, repo := newTestProcessor(t, runner)

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != review.StatusNeedsReview {
		t.Errorf("Status = %q, want NEEDS_REVIEW", doc.Status)
	}
}

func TestProcessDocumentAuthErrorHaltsWorker(t *testing.T) {
	runner := &stubRunner{err: fmt.Errorf("gemini: %w", ocr.ErrAuth)}
	p, _ := newTestProcessor(t, runner)

	err := p.ProcessDocument(context.Background(), "doc-1")
	if !errors.Is(err, ErrHalt) {
		t.Fatalf("err = %v, want ErrHalt", err)
	}
	if runner.calls != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", runner.calls)
	}
}

func TestProcessDocumentRetryableErrorRetriesWithFixedWait(t *testing.T) {
	retryable := errors.New("gemini: http status 429: quota exceeded")
	runner := &stubRunner{err: retryable}
	p, _ := newTestProcessor(t, runner)
	waits := 0
	p.sleep = func(ctx context.Context, d time.Duration) error {
		waits++
		if d != p.RetryWait {
			t.Errorf("wait = %s, want fixed %s", d, p.RetryWait)
		}
		return nil
	}

	err := p.ProcessDocument(context.Background(), "doc-1")
	if err == nil {
		t.Fatal("exhausted retries must surface an error")
	}
	if errors.Is(err, ErrHalt) {
		t.Error("retryable errors must not halt the worker")
	}
	if runner.calls != p.MaxAttempts {
		t.Errorf("calls = %d, want %d", runner.calls, p.MaxAttempts)
	}
	if waits != p.MaxAttempts-1 {
		t.Errorf("waits = %d, want %d", waits, p.MaxAttempts-1)
	}
}

func TestProcessDocumentRetryableErrorEventuallySucceeds(t *testing.T) {
	runner := &stubRunner{
		err:      errors.New("gemini: http status 503: unavailable"),
		failures: 2,
		result: pipeline.Result{
			Success: true, FinalScore: 90, Route: pipeline.RouteAutoValid,
			ValidatedJSON: []byte(`{}`),
		},
	}
	p, repo := newTestProcessor(t, runner)

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != review.StatusValid {
		t.Errorf("Status = %q, want VALID after successful retry", doc.Status)
	}
}

func TestProcessDocumentQuarantinesUnclassifiedError(t *testing.T) {
	runner := &stubRunner{err: errors.New("gemini: http status 400: bad request")}
	p, repo := newTestProcessor(t, runner)

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("quarantine must finish the job, got %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != review.StatusError {
		t.Errorf("Status = %q, want ERROR", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Error("ErrorMessage should record the cause")
	}
}

func TestProcessDocumentQuarantinesRejectedInput(t *testing.T) {
	runner := &stubRunner{result: pipeline.Result{
		Success: false,
		Error:   "input rejected: file too small",
	}}
	p, repo := newTestProcessor(t, runner)

	if err := p.ProcessDocument(context.Background(), "doc-1"); err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	doc, _ := repo.GetByID(context.Background(), "doc-1")
	if doc.Status != review.StatusError {
		t.Errorf("Status = %q, want ERROR", doc.Status)
	}
}

func TestParseMessage(t *testing.T) {
	if _, _, err := ParseMessage("   "); err == nil {
		t.Error("empty body should fail")
	} else if _, ok := err.(ErrEmptyBody); !ok {
		t.Errorf("err = %T, want ErrEmptyBody", err)
	}

	if _, _, err := ParseMessage("{not json"); err == nil {
		t.Error("bad json should fail")
	} else if _, ok := err.(ErrDecode); !ok {
		t.Errorf("err = %T, want ErrDecode", err)
	}

	if _, _, err := ParseMessage(`{"requestId":"r-1"}`); err == nil {
		t.Error("missing document id should fail")
	} else if _, ok := err.(ErrMissingDocumentID); !ok {
		t.Errorf("err = %T, want ErrMissingDocumentID", err)
	}

	msg, meta, err := ParseMessage(`{"documentId":"doc-1","requestId":"r-1","version":1}`)
	if err != nil {
		t.Fatalf("ParseMessage: %v", err)
	}
	if msg.DocumentID != "doc-1" || msg.RequestID != "r-1" {
		t.Errorf("msg = %+v", msg)
	}
	if meta.BodyLen == 0 || meta.BodySHA == "" {
		t.Errorf("meta = %+v", meta)
	}
}
