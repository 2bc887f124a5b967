package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/service/assistant"
	"sprintmail/pkg/logger"
)

type Assistant interface {
	Draft(ctx context.Context, in assistant.DraftInput) (*assistant.Result, error)
	Respond(ctx context.Context, in assistant.ResponseInput) (*assistant.Result, error)
	Analyze(ctx context.Context, content string) (*assistant.Result, error)
	Summarize(ctx context.Context, thread string) (*assistant.Result, error)
	Template(ctx context.Context, in assistant.TemplateInput) (*assistant.Result, error)
	AnalyzeText(ctx context.Context, text, kind string) (map[string]any, error)
	History(ctx context.Context) ([]model.AssistantRecord, error)
	Rate(ctx context.Context, id int64, rating int, feedback string) (*model.AssistantRecord, error)
}

// AssistantHandler /api/email/* 通用写作助手
type AssistantHandler struct {
	assistant Assistant
	logger    *zap.Logger
}

func NewAssistantHandler(a Assistant, logger *zap.Logger) *AssistantHandler {
	return &AssistantHandler{assistant: a, logger: logger}
}

// Draft POST /api/email/draft
func (h *AssistantHandler) Draft(c *gin.Context) {
	var req assistant.DraftInput
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assistant.Draft(c.Request.Context(), req)
	h.respondResult(c, "draft email", res, err)
}

// Response POST /api/email/response
func (h *AssistantHandler) Response(c *gin.Context) {
	var req assistant.ResponseInput
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assistant.Respond(c.Request.Context(), req)
	h.respondResult(c, "generate response", res, err)
}

type analyzeEmailRequest struct {
	EmailContent string `json:"email_content"`
}

// Analyze POST /api/email/analyze
func (h *AssistantHandler) Analyze(c *gin.Context) {
	var req analyzeEmailRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assistant.Analyze(c.Request.Context(), req.EmailContent)
	h.respondResult(c, "analyze email", res, err)
}

type summarizeRequest struct {
	EmailThread string `json:"email_thread"`
}

// Summarize POST /api/email/summarize
func (h *AssistantHandler) Summarize(c *gin.Context) {
	var req summarizeRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assistant.Summarize(c.Request.Context(), req.EmailThread)
	h.respondResult(c, "summarize email", res, err)
}

// Template POST /api/email/template
func (h *AssistantHandler) Template(c *gin.Context) {
	var req assistant.TemplateInput
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.assistant.Template(c.Request.Context(), req)
	h.respondResult(c, "generate template", res, err)
}

type analyzeTextRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

// AnalyzeText POST /api/email/analyze-text
func (h *AssistantHandler) AnalyzeText(c *gin.Context) {
	var req analyzeTextRequest
	if !bindJSON(c, &req) {
		return
	}
	out, err := h.assistant.AnalyzeText(c.Request.Context(), req.Text, req.Type)
	if err != nil {
		h.respondFailure(c, "analyze text", err)
		return
	}
	respondOK(c, out)
}

// History GET /api/email/history
func (h *AssistantHandler) History(c *gin.Context) {
	records, err := h.assistant.History(c.Request.Context())
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to fetch assistant history", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to fetch history")
		return
	}
	respondOK(c, records)
}

// Rate POST /api/email/history/:id/rate
func (h *AssistantHandler) Rate(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req feedbackRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Rating == nil {
		respondError(c, http.StatusBadRequest, "Invalid input: rating is required")
		return
	}

	rec, err := h.assistant.Rate(c.Request.Context(), id, *req.Rating, req.Feedback)
	switch {
	case errors.Is(err, assistant.ErrInvalidInput):
		respondError(c, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, repository.ErrNotFound):
		respondError(c, http.StatusNotFound, "Email history not found")
		return
	case err != nil:
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to rate assistant history",
			zap.Int64("history_id", id), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to save rating")
		return
	}
	respondOK(c, rec)
}

func (h *AssistantHandler) respondResult(c *gin.Context, action string, res *assistant.Result, err error) {
	if err != nil {
		h.respondFailure(c, action, err)
		return
	}
	respondOK(c, res)
}

// respondFailure 补全服务失败返回 502，其余内部错误只暴露类别
func (h *AssistantHandler) respondFailure(c *gin.Context, action string, err error) {
	if errors.Is(err, assistant.ErrInvalidInput) {
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}

	logger.WithTrace(c.Request.Context(), h.logger).Error("Assistant request failed", zap.String("action", action), zap.Error(err))
	status := http.StatusInternalServerError
	if errors.Is(err, llm.ErrProviderFailure) {
		status = http.StatusBadGateway
	}
	respondError(c, status, "Failed to "+action+": "+assistant.FailureReason(err))
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid input: malformed JSON body")
		return false
	}
	return true
}
