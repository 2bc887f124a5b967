package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/service/learning"
	"sprintmail/pkg/logger"
)

type Trainer interface {
	Upload(ctx context.Context, in learning.UploadInput) (*model.TrainingEmail, error)
	Analyze(ctx context.Context, id int64) (*learning.AnalysisResult, error)
	AnalyzeAll(ctx context.Context) ([]learning.AnalyzeOutcome, error)
}

type TrainingEmailHandler struct {
	trainer Trainer
	logger  *zap.Logger
}

func NewTrainingEmailHandler(trainer Trainer, logger *zap.Logger) *TrainingEmailHandler {
	return &TrainingEmailHandler{trainer: trainer, logger: logger}
}

type uploadRequest struct {
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	EmailType  string `json:"email_type"`
	SenderName string `json:"sender_name"`
	Recipient  string `json:"recipient"`
}

// Upload POST /api/training-emails
// 分析由 training_email.uploaded 事件异步完成
func (h *TrainingEmailHandler) Upload(c *gin.Context) {
	var req uploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid input: malformed JSON body")
		return
	}

	email, err := h.trainer.Upload(c.Request.Context(), learning.UploadInput{
		Subject:    req.Subject,
		Content:    req.Content,
		EmailType:  req.EmailType,
		SenderName: req.SenderName,
		Recipient:  req.Recipient,
	})
	switch {
	case errors.Is(err, learning.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, repository.ErrDuplicate):
		respondError(c, http.StatusConflict, "training email with identical content already exists")
		return
	case err != nil:
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to upload training email", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Upload failed")
		return
	}

	respond(c, http.StatusCreated, gin.H{
		"training_id": email.ID,
		"status":      "pending",
		"message":     "Email uploaded, analysis queued",
	})
}

// Analyze POST /api/training-emails/:id/analyze
func (h *TrainingEmailHandler) Analyze(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	res, err := h.trainer.Analyze(c.Request.Context(), id)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		respondError(c, http.StatusNotFound, "Training email not found")
		return
	case errors.Is(err, learning.ErrAlreadyProcessed), errors.Is(err, repository.ErrConflict):
		respondError(c, http.StatusConflict, "Training email already processed")
		return
	case errors.Is(err, learning.ErrAnalysisFailure):
		respondError(c, http.StatusBadGateway, "Analysis failed: completion provider unavailable")
		return
	case err != nil:
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to analyze training email",
			zap.Int64("training_email_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Analysis failed")
		return
	}
	respondOK(c, res)
}

// AnalyzeAll POST /api/training-emails/analyze-all
func (h *TrainingEmailHandler) AnalyzeAll(c *gin.Context) {
	outcomes, err := h.trainer.AnalyzeAll(c.Request.Context())
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to analyze pending training emails", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Analysis failed")
		return
	}

	succeeded := 0
	for _, o := range outcomes {
		if o.Status == "success" {
			succeeded++
		}
	}
	respondOK(c, gin.H{
		"processed": len(outcomes),
		"succeeded": succeeded,
		"failed":    len(outcomes) - succeeded,
		"results":   outcomes,
	})
}
