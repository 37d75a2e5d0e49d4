package documents

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"confirmation-backend/internal/review"
)

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userId", "alice")
		c.Next()
	})
	api := r.Group("/api/v1")
	NewHandler(svc).RegisterRoutes(api)
	return r
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	part.Write(content)
	w.Close()
	return &buf, w.FormDataContentType()
}

func TestUploadEndpointCreatesDocument(t *testing.T) {
	svc, _, _ := newTestService()
	r := newTestRouter(svc)

	body, contentType := multipartBody(t, "file", "bestellung.pdf", []byte("%PDF-fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		DocumentID string `json:"documentId"`
		Status     string `json:"status"`
		Version    int    `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DocumentID == "" || resp.Status != review.StatusNew || resp.Version != 1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestUploadEndpointRejectsMissingFile(t *testing.T) {
	svc, _, _ := newTestService()
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadEndpointRejectsUnsupportedType(t *testing.T) {
	svc, _, _ := newTestService()
	r := newTestRouter(svc)

	body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestProcessEndpointUnknownDocument(t *testing.T) {
	svc, _, _ := newTestService()
	r := newTestRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/missing/process", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProcessEndpointTriggers(t *testing.T) {
	svc, _, trigger := newTestService()
	r := newTestRouter(svc)

	doc, err := svc.Review.CreateEntry(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "scan.jpg", "alice/scan.jpg")
	if err != nil {
		t.Fatalf("CreateEntry: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/"+doc.ID+"/process", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(trigger.ids) != 1 || trigger.ids[0] != doc.ID {
		t.Errorf("trigger ids = %v", trigger.ids)
	}
}
