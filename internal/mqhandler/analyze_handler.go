package mqhandler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/repository"
	"sprintmail/internal/service/learning"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/trace"
	"sprintmail/pkg/util"
)

const analyzeHandlerName = "analyze"

type Analyzer interface {
	Analyze(ctx context.Context, id int64) (*learning.AnalysisResult, error)
}

// TrainingEmailUploadedHandler 消费 training_email.uploaded，对新上传的训练邮件执行分析
type TrainingEmailUploadedHandler struct {
	analyzer     Analyzer
	deduper      *util.Deduper
	retryCounter *util.RetryCounter
	maxRetries   int64
	logger       *zap.Logger
}

func NewTrainingEmailUploadedHandler(
	analyzer Analyzer,
	deduper *util.Deduper,
	retryCounter *util.RetryCounter,
	maxRetries int64,
	logger *zap.Logger,
) *TrainingEmailUploadedHandler {
	return &TrainingEmailUploadedHandler{
		analyzer:     analyzer,
		deduper:      deduper,
		retryCounter: retryCounter,
		maxRetries:   maxRetries,
		logger:       logger,
	}
}

// Handle 返回 nil 表示 ack，返回 error 表示 nack 并重新入队
func (h *TrainingEmailUploadedHandler) Handle(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.TrainingEmailUploadedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Invalid training_email.uploaded payload, dropping",
			zap.String("raw", string(raw)),
			zap.Error(err),
		)
		return nil
	}
	if trace.FromContext(ctx) == "" && p.TraceID != "" {
		ctx = trace.WithContext(ctx, p.TraceID)
	}
	log := logger.WithTrace(ctx, h.logger).With(zap.Int64("training_email_id", p.TrainingEmailID))

	if !h.deduper.AcquireOnce(ctx, analyzeHandlerName, p.TrainingEmailID) {
		return nil
	}

	retryKey := util.FormatRetryKey(analyzeHandlerName, p.TrainingEmailID)
	attempt, err := h.retryCounter.IncrementAndGet(ctx, retryKey)
	if err != nil {
		log.Warn("Retry counter unavailable", zap.Error(err))
		attempt = 1
	}

	res, err := h.analyzer.Analyze(ctx, p.TrainingEmailID)
	if err == nil {
		_ = h.retryCounter.Reset(ctx, retryKey)
		log.Info("Training email analyzed",
			zap.Int64("template_id", res.TemplateID),
			zap.Bool("template_fallback", res.TemplateFallback),
		)
		return nil
	}

	if errors.Is(err, learning.ErrAlreadyProcessed) ||
		errors.Is(err, repository.ErrConflict) ||
		errors.Is(err, repository.ErrNotFound) {
		log.Info("Training email no longer pending, skipping", zap.Error(err))
		_ = h.retryCounter.Reset(ctx, retryKey)
		return nil
	}

	retryable, errType := util.IsRetryableError(err)
	if !util.ShouldRetry(attempt, h.maxRetries, retryable) {
		log.Warn("Giving up on training email analysis",
			zap.String("error_type", errType),
			zap.Bool("retryable", retryable),
			zap.Int64("attempt", attempt),
			zap.Error(err),
		)
		_ = h.retryCounter.Reset(ctx, retryKey)
		// 放弃后同样释放，运维重放该事件时才能重新分析
		h.releaseLock(ctx, log, p.TrainingEmailID)
		return nil
	}

	log.Warn("Training email analysis failed, requeueing",
		zap.String("error_type", errType),
		zap.Int64("attempt", attempt),
		zap.Error(err),
	)
	// 释放去重锁，否则重新投递会被跳过
	h.releaseLock(ctx, log, p.TrainingEmailID)
	return err
}

func (h *TrainingEmailUploadedHandler) releaseLock(ctx context.Context, log *zap.Logger, id int64) {
	if err := h.deduper.Release(ctx, analyzeHandlerName, id); err != nil {
		log.Warn("Failed to release dedup lock", zap.Error(err))
	}
}
