package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/service/catalog"
	"sprintmail/pkg/logger"
)

type Catalog interface {
	ListTemplates(ctx context.Context) (*catalog.TemplateList, error)
	History(ctx context.Context, limit, offset int) (*catalog.HistoryPage, error)
	SubmitFeedback(ctx context.Context, historyID int64, rating int, comment string) (*model.GenerationRecord, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type CatalogHandler struct {
	catalog Catalog
	logger  *zap.Logger
}

func NewCatalogHandler(catalog Catalog, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

// Templates GET /api/templates
func (h *CatalogHandler) Templates(c *gin.Context) {
	list, err := h.catalog.ListTemplates(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to fetch templates", err)
		return
	}
	respondOK(c, list)
}

// History GET /api/history?limit=20&offset=0
func (h *CatalogHandler) History(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(catalog.DefaultLimit)))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid offset parameter")
		return
	}

	page, err := h.catalog.History(c.Request.Context(), limit, offset)
	if err != nil {
		h.internalError(c, "Failed to fetch history", err)
		return
	}
	respondOK(c, page)
}

type feedbackRequest struct {
	Rating   *int   `json:"rating"`
	Feedback string `json:"feedback"`
}

// Feedback POST /api/history/:id/feedback
func (h *CatalogHandler) Feedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid input: malformed JSON body")
		return
	}
	if req.Rating == nil {
		respondError(c, http.StatusBadRequest, "Invalid input: rating is required")
		return
	}

	rec, err := h.catalog.SubmitFeedback(c.Request.Context(), id, *req.Rating, req.Feedback)
	switch {
	case errors.Is(err, catalog.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		respondError(c, http.StatusNotFound, "Email history not found")
		return
	case err != nil:
		h.internalError(c, "Failed to submit feedback", err)
		return
	}
	respondOK(c, gin.H{"history_id": rec.ID, "feedback": rec.Feedback})
}

// Stats GET /api/stats
func (h *CatalogHandler) Stats(c *gin.Context) {
	st, err := h.catalog.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "Failed to fetch stats", err)
		return
	}
	respondOK(c, st)
}

func (h *CatalogHandler) internalError(c *gin.Context, msg string, err error) {
	logger.WithTrace(c.Request.Context(), h.logger).Error(msg, zap.Error(err))
	respondError(c, http.StatusInternalServerError, msg)
}
