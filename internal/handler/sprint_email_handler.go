package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sprintmail/internal/service/generation"
	"sprintmail/pkg/logger"
)

const (
	minRequestLen = 10
	maxRequestLen = 500
)

// 请求上下文中受约束的字段
var contextEmailTypes = map[string]bool{"commitment": true, "update": true, "retrospective": true}

type Generator interface {
	Generate(ctx context.Context, request string, vars map[string]string) *generation.Result
}

type SprintEmailHandler struct {
	generator Generator
	logger    *zap.Logger
}

func NewSprintEmailHandler(generator Generator, logger *zap.Logger) *SprintEmailHandler {
	return &SprintEmailHandler{generator: generator, logger: logger}
}

type generateRequest struct {
	Request string         `json:"request"`
	Context map[string]any `json:"context"`
}

// Generate POST /api/sprint-emails/generate
func (h *SprintEmailHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid input: malformed JSON body")
		return
	}

	vars, err := req.validate()
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid input: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	res := h.generator.Generate(ctx, req.Request, vars)
	if !res.Success {
		respondError(c, http.StatusInternalServerError, res.Error)
		return
	}

	logger.WithTrace(ctx, h.logger).Info("Sprint email generated",
		zap.Int64("history_id", res.HistoryID),
		zap.String("template_used", res.Email.TemplateUsed),
	)
	respondOK(c, res)
}

// validate 校验请求并把上下文值统一转成字符串
func (r generateRequest) validate() (map[string]string, error) {
	n := utf8.RuneCountInString(r.Request)
	if n < minRequestLen || n > maxRequestLen {
		return nil, fmt.Errorf("request must be between %d and %d characters", minRequestLen, maxRequestLen)
	}

	vars := make(map[string]string, len(r.Context))
	for k, v := range r.Context {
		vars[k] = stringify(v)
	}

	if s, ok := vars["sprint_name"]; ok && utf8.RuneCountInString(s) > 100 {
		return nil, fmt.Errorf("context.sprint_name must be at most 100 characters")
	}
	if t, ok := vars["email_type"]; ok && !contextEmailTypes[t] {
		return nil, fmt.Errorf("context.email_type must be one of commitment, update, retrospective")
	}
	if s, ok := vars["additional_context"]; ok && utf8.RuneCountInString(s) > 1000 {
		return nil, fmt.Errorf("context.additional_context must be at most 1000 characters")
	}
	return vars, nil
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}
