package mqhandler

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/trace"
	"sprintmail/pkg/util"
)

type SuccessRateRecomputer interface {
	RecomputeSuccessRate(ctx context.Context, templateID int64) (float64, error)
}

// FeedbackSubmittedHandler 消费 feedback.submitted，重新计算模板成功率
type FeedbackSubmittedHandler struct {
	templates SuccessRateRecomputer
	logger    *zap.Logger
}

func NewFeedbackSubmittedHandler(templates SuccessRateRecomputer, logger *zap.Logger) *FeedbackSubmittedHandler {
	return &FeedbackSubmittedHandler{templates: templates, logger: logger}
}

func (h *FeedbackSubmittedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.FeedbackSubmittedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Invalid feedback.submitted payload, dropping", zap.Error(err))
		return nil
	}
	if trace.FromContext(ctx) == "" && p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(zap.Int64("history_id", p.HistoryID))

	// 从零生成的邮件没有模板
	if p.TemplateID == nil {
		return nil
	}

	rate, err := h.templates.RecomputeSuccessRate(ctx, *p.TemplateID)
	if err != nil {
		retryable, errType := util.IsRetryableError(err)
		log.Error("Failed to recompute template success rate",
			zap.Int64("template_id", *p.TemplateID),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		if retryable {
			return err
		}
		return nil
	}

	log.Info("Template success rate updated",
		zap.Int64("template_id", *p.TemplateID),
		zap.Float64("success_rate", rate),
	)
	return nil
}
