package documents

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"confirmation-backend/internal/review"
	"confirmation-backend/internal/shared/server/middleware"
	"confirmation-backend/internal/shared/server/respond"
)

const defaultMaxUploadSize = 50 << 20 // 50MB

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
	// MaxUploadBytes caps the multipart request body.
	MaxUploadBytes int64
}

// NewHandler constructs a Handler with the default upload cap.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc, MaxUploadBytes: defaultMaxUploadSize}
}

// RegisterRoutes attaches document intake routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/documents", h.upload)
	rg.POST("/documents/:id/process", h.process)
}

func (h *Handler) upload(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadSize
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "unable to read file", nil)
		return
	}
	defer file.Close()

	doc, err := h.Svc.Upload(c.Request.Context(), userID, fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", "unsupported file", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to store document", nil)
		}
		return
	}

	c.Set("documentId", doc.ID)
	respond.JSON(c, http.StatusCreated, gin.H{
		"documentId": doc.ID,
		"filename":   doc.Filename,
		"status":     doc.Status,
		"version":    doc.Version,
		"createdAt":  doc.CreatedAt,
	})
}

func (h *Handler) process(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	if err := h.Svc.Process(c.Request.Context(), c.Param("id")); err != nil {
		switch {
		case errors.Is(err, review.ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to trigger processing", nil)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"documentId": c.Param("id"), "triggered": true})
}
