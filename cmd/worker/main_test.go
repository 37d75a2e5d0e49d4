package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"confirmation-backend/internal/bootstrap"
	"confirmation-backend/internal/ocr"
	"confirmation-backend/internal/pipeline"
	"confirmation-backend/internal/queue"
	"confirmation-backend/internal/review"
	"confirmation-backend/internal/workerproc"
)

type fakeSQS struct {
	deleted []string
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	_ = ctx
	_ = params
	_ = optFns
	return &sqs.ReceiveMessageOutput{}, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	_ = ctx
	_ = optFns
	f.deleted = append(f.deleted, aws.ToString(params.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeStore struct{}

func (fakeStore) Save(ctx context.Context, userId, fileName string, r io.Reader) (string, int64, string, error) {
	return "", 0, "", errors.New("not implemented")
}

func (fakeStore) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("%PDF-fake"))), nil
}

type fakeRunner struct {
	result pipeline.Result
	err    error
}

func (f fakeRunner) Process(ctx context.Context, source []byte, filename string) (pipeline.Result, error) {
	return f.result, f.err
}

func testApp(t *testing.T, runner workerproc.Runner) *bootstrap.App {
	t.Helper()
	repo := review.NewMemoryRepo()
	if err := repo.Create(context.Background(), review.Document{
		ID:         "doc-1",
		Filename:   "doc-1.pdf",
		StorageKey: "orig/doc-1.pdf",
		Status:     review.StatusNew,
		Version:    1,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p := workerproc.NewProcessor(repo, fakeStore{}, runner, time.Millisecond)
	p.MaxAttempts = 1
	return &bootstrap.App{Processor: p}
}

func sqsMessage(id, receipt, body string) sqstypes.Message {
	return sqstypes.Message{
		MessageId:     aws.String(id),
		ReceiptHandle: aws.String(receipt),
		Body:          aws.String(body),
		Attributes:    map[string]string{"ApproximateReceiveCount": "1"},
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t, fakeRunner{result: pipeline.Result{
		Success:       true,
		FinalScore:    90,
		Route:         pipeline.RouteAutoValid,
		ValidatedJSON: []byte(`{}`),
	}})
	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-1"})

	handleMessage(context.Background(), app, client, "queue", sqsMessage("m1", "r1", string(msgBody)), func() {})

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerDoesNotDeleteOnRetryableFailure(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t, fakeRunner{err: errors.New("ocr http status 503: unavailable")})
	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-2"})

	handleMessage(context.Background(), app, client, "queue", sqsMessage("m2", "r2", string(msgBody)), func() {})

	if len(client.deleted) != 0 {
		t.Fatalf("expected no delete, got %d", len(client.deleted))
	}
}

func TestWorkerDeletesOnInvalidJSON(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t, fakeRunner{})

	handleMessage(context.Background(), app, client, "queue", sqsMessage("m3", "r3", "{bad-json"), func() {})

	if len(client.deleted) != 1 {
		t.Fatalf("expected delete, got %d", len(client.deleted))
	}
}

func TestWorkerHaltsOnAuthFailure(t *testing.T) {
	client := &fakeSQS{}
	app := testApp(t, fakeRunner{err: fmt.Errorf("gemini: %w", ocr.ErrAuth)})
	msgBody, _ := queue.EncodeMessage(queue.Message{DocumentID: "doc-1", RequestID: "req-3"})

	halted := false
	handleMessage(context.Background(), app, client, "queue", sqsMessage("m4", "r4", string(msgBody)), func() { halted = true })

	if !halted {
		t.Fatal("expected the poll loop to be halted")
	}
	if len(client.deleted) != 0 {
		t.Fatalf("halt must leave the message on the queue, got %d deletes", len(client.deleted))
	}
}
