package review

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"confirmation-backend/internal/shared/server/middleware"
	"confirmation-backend/internal/shared/server/respond"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches review-queue routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/queue", h.list)
	rg.GET("/queue/:id", h.get)
	rg.POST("/queue/:id/claim", h.claim)
	rg.POST("/queue/:id/release", h.release)
	rg.GET("/queue/:id/annotations", h.latestAnnotation)
	rg.PUT("/queue/:id/annotations", h.saveAnnotation)
}

type documentResponse struct {
	ID             string          `json:"id"`
	Filename       string          `json:"filename"`
	Status         string          `json:"status"`
	Score          int             `json:"score"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	Version        int             `json:"version"`
	ClaimedBy      string          `json:"claimedBy,omitempty"`
	ClaimExpiresAt *time.Time      `json:"claimExpiresAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func toResponse(doc Document) documentResponse {
	return documentResponse{
		ID:             doc.ID,
		Filename:       doc.Filename,
		Status:         doc.Status,
		Score:          doc.Score,
		Result:         doc.ResultJSON,
		ErrorMessage:   doc.ErrorMessage,
		Version:        doc.Version,
		ClaimedBy:      doc.ClaimedBy,
		ClaimExpiresAt: doc.ClaimExpiresAt,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func (h *Handler) list(c *gin.Context) {
	status := c.Query("status")

	limit := 20
	offset := 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}

	docs, err := h.Svc.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list queue", nil)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, toResponse(doc))
	}
	respond.JSON(c, http.StatusOK, resp)
}

func (h *Handler) get(c *gin.Context) {
	doc, err := h.Svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) claim(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	userID := middleware.UserIDFromContext(c)

	doc, err := h.Svc.Claim(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrClaimConflict):
			respond.Error(c, http.StatusConflict, "claim_conflict", "document is claimed by another reviewer", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to claim document", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}

func (h *Handler) release(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)

	if err := h.Svc.Release(c.Request.Context(), c.Param("id"), userID); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to release claim", nil)
		}
		return
	}
	c.Status(http.StatusNoContent)
}

type annotationResponse struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	Author     string          `json:"author"`
	Fields     json.RawMessage `json:"fields"`
	Version    int             `json:"version"`
	CreatedAt  time.Time       `json:"createdAt"`
}

func (h *Handler) latestAnnotation(c *gin.Context) {
	a, err := h.Svc.LatestAnnotation(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "no annotations for document", nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to fetch annotation", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, annotationResponse{
		ID:         a.ID,
		DocumentID: a.DocumentID,
		Author:     a.Author,
		Fields:     a.Fields,
		Version:    a.Version,
		CreatedAt:  a.CreatedAt,
	})
}

type saveAnnotationRequest struct {
	Fields         json.RawMessage `json:"fields"`
	CurrentVersion int             `json:"currentVersion"`
}

func (h *Handler) saveAnnotation(c *gin.Context) {
	c.Set("documentId", c.Param("id"))
	userID := middleware.UserIDFromContext(c)

	var req saveAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if len(req.Fields) == 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "fields is required", nil)
		return
	}
	if req.CurrentVersion <= 0 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "currentVersion must be positive", nil)
		return
	}

	doc, err := h.Svc.SaveAnnotation(c.Request.Context(), c.Param("id"), userID, req.Fields, req.CurrentVersion)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			respond.Error(c, http.StatusNotFound, "not_found", "document not found", nil)
		case errors.Is(err, ErrVersionConflict):
			respond.Error(c, http.StatusConflict, "version_conflict", "document was modified, reload and retry", nil)
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		default:
			respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to save annotation", nil)
		}
		return
	}
	respond.JSON(c, http.StatusOK, toResponse(doc))
}
