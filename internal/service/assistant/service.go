// Package assistant 通用邮件写作助手：起草、回复、分析、摘要与模板生成
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/placeholder"
	"sprintmail/internal/repository"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/metrics"
	"sprintmail/pkg/otel"
	"sprintmail/pkg/trace"
)

const (
	HistoryLimit = 20

	defaultTemperature = 0.7
	defaultMaxTokens   = 1000

	templateNameContextLen = 50
)

var (
	ErrInvalidInput = errors.New("invalid input")

	textAnalysisOptions = llm.Options{Temperature: 0.3, MaxTokens: 500}
)

type Store interface {
	CreateAssistantRecord(ctx context.Context, r *model.AssistantRecord) error
	ListAssistantRecords(ctx context.Context, limit int) ([]model.AssistantRecord, error)
	RateAssistantRecord(ctx context.Context, id int64, rating int, feedback string) (*model.AssistantRecord, error)
	// FirstAssistantTemplate 该类型下最早的模板，没有时返回 repository.ErrNotFound
	FirstAssistantTemplate(ctx context.Context, templateType string) (*model.AssistantTemplate, error)
	CreateAssistantTemplate(ctx context.Context, t *model.AssistantTemplate) error
	IncrementAssistantTemplateUsage(ctx context.Context, id int64) error
}

type DraftInput struct {
	Description string `json:"description"`
	Tone        string `json:"tone"`
	Context     string `json:"context"`
}

type ResponseInput struct {
	OriginalEmail string `json:"original_email"`
	Instructions  string `json:"instructions"`
	Tone          string `json:"tone"`
}

type TemplateInput struct {
	TemplateType string `json:"template_type"`
	Context      string `json:"context"`
}

// Result 各操作的统一返回
type Result struct {
	Content   string            `json:"content"`
	Usage     *model.TokenUsage `json:"usage,omitempty"`
	Metadata  map[string]any    `json:"metadata"`
	HistoryID int64             `json:"history_id,omitempty"`
}

type Service struct {
	store  Store
	llm    llm.Completer
	now    func() time.Time
	logger *zap.Logger
}

func NewService(store Store, c llm.Completer, logger *zap.Logger) *Service {
	return &Service{store: store, llm: c, now: time.Now, logger: logger}
}

// lengthRule 以字符数计的长度约束，min 为 0 时表示可选
type lengthRule struct {
	field    string
	value    string
	min, max int
}

func validate(rules ...lengthRule) error {
	for _, r := range rules {
		n := utf8.RuneCountInString(strings.TrimSpace(r.value))
		if r.min > 0 && n == 0 {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, r.field)
		}
		if n < r.min {
			return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalidInput, r.field, r.min)
		}
		if n > r.max {
			return fmt.Errorf("%w: %s must be at most %d characters", ErrInvalidInput, r.field, r.max)
		}
	}
	return nil
}

func (s *Service) Draft(ctx context.Context, in DraftInput) (*Result, error) {
	if err := validate(
		lengthRule{"description", in.Description, 10, 1000},
		lengthRule{"context", in.Context, 0, 500},
	); err != nil {
		return nil, err
	}
	tone, err := ParseTone(in.Tone)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, call{
		operation: model.OperationDraft,
		tone:      tone,
		prompt:    draftPrompt(in.Description, in.Context),
		input:     in.Description,
		opts:      llm.Options{Temperature: tone.Temperature(), MaxTokens: defaultMaxTokens},
		metadata:  map[string]any{"has_context": in.Context != ""},
	})
}

func (s *Service) Respond(ctx context.Context, in ResponseInput) (*Result, error) {
	if err := validate(
		lengthRule{"original_email", in.OriginalEmail, 20, 5000},
		lengthRule{"instructions", in.Instructions, 0, 500},
	); err != nil {
		return nil, err
	}
	tone, err := ParseTone(in.Tone)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, call{
		operation: model.OperationResponse,
		tone:      tone,
		prompt:    responsePrompt(in.OriginalEmail, in.Instructions),
		input:     in.OriginalEmail,
		opts:      llm.Options{Temperature: tone.Temperature(), MaxTokens: defaultMaxTokens},
		metadata:  map[string]any{"has_instructions": in.Instructions != ""},
	})
}

func (s *Service) Analyze(ctx context.Context, content string) (*Result, error) {
	if err := validate(lengthRule{"email_content", content, 20, 5000}); err != nil {
		return nil, err
	}
	return s.run(ctx, call{
		operation: model.OperationAnalyze,
		prompt:    analyzePrompt(content),
		input:     content,
		opts:      llm.Options{Temperature: defaultTemperature, MaxTokens: defaultMaxTokens},
	})
}

func (s *Service) Summarize(ctx context.Context, thread string) (*Result, error) {
	if err := validate(lengthRule{"email_thread", thread, 50, 10000}); err != nil {
		return nil, err
	}
	return s.run(ctx, call{
		operation: model.OperationSummarize,
		prompt:    summaryPrompt(thread),
		input:     thread,
		opts:      llm.Options{Temperature: defaultTemperature, MaxTokens: defaultMaxTokens},
	})
}

// Template 未给出 context 且已有同类型模板时直接复用并累加使用次数
func (s *Service) Template(ctx context.Context, in TemplateInput) (*Result, error) {
	if err := validate(lengthRule{"context", in.Context, 0, 500}); err != nil {
		return nil, err
	}
	tt, err := ParseTemplateType(in.TemplateType)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Context) == "" {
		existing, err := s.store.FirstAssistantTemplate(ctx, string(tt))
		switch {
		case err == nil:
			if err := s.store.IncrementAssistantTemplateUsage(ctx, existing.ID); err != nil {
				return nil, fmt.Errorf("increment template usage: %w", err)
			}
			metrics.IncrementAssistantOperation(model.OperationTemplate, "cached")
			return &Result{
				Content: existing.Content,
				Metadata: map[string]any{
					"from_cache":   true,
					"template_id":  existing.ID,
					"placeholders": existing.Placeholders,
				},
			}, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, fmt.Errorf("find template: %w", err)
		}
	}

	res, err := s.run(ctx, call{
		operation: model.OperationTemplate,
		prompt:    templatePrompt(tt, in.Context),
		input:     string(tt),
		opts:      llm.Options{Temperature: defaultTemperature, MaxTokens: defaultMaxTokens},
		metadata:  map[string]any{"template_type": string(tt)},
	})
	if err != nil {
		return nil, err
	}

	name := tt.Description()
	if c := strings.TrimSpace(in.Context); c != "" {
		name += " - " + truncate(c, templateNameContextLen)
	}
	tmpl := &model.AssistantTemplate{
		TemplateType: string(tt),
		Name:         name,
		Content:      res.Content,
		Placeholders: placeholder.ExtractBracketed(res.Content),
		Context:      in.Context,
	}
	if err := s.store.CreateAssistantTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("save template: %w", err)
	}
	res.Metadata["template_id"] = tmpl.ID
	res.Metadata["placeholders"] = tmpl.Placeholders
	return res, nil
}

// AnalyzeText 返回模型给出的 JSON 分析；回复不是 JSON 时包装为 {analysis, type, timestamp}
func (s *Service) AnalyzeText(ctx context.Context, text, kind string) (map[string]any, error) {
	if err := validate(lengthRule{"text", text, 1, 10000}); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = "general"
	}

	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "assistant.analyze_text")
	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: textAnalysisSystemPrompt},
		{Role: llm.RoleUser, Content: textAnalysisPrompt(kind, text)},
	}, textAnalysisOptions)
	otel.EndSpan(span, err)
	if err != nil {
		logger.WithTrace(ctx, s.logger).Error("Text analysis failed", zap.String("type", kind), zap.Error(err))
		return nil, err
	}

	if body, ok := jsonSpan(resp.Content); ok {
		var out map[string]any
		if err := json.Unmarshal([]byte(body), &out); err == nil {
			return out, nil
		}
	}
	return map[string]any{
		"analysis":  resp.Content,
		"type":      kind,
		"timestamp": s.now().UTC().Format(time.RFC3339),
	}, nil
}

// History 最近的 HistoryLimit 条记录，最新在前
func (s *Service) History(ctx context.Context) ([]model.AssistantRecord, error) {
	records, err := s.store.ListAssistantRecords(ctx, HistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list assistant history: %w", err)
	}
	if records == nil {
		records = []model.AssistantRecord{}
	}
	return records, nil
}

// Rate 记录不存在时返回 repository.ErrNotFound
func (s *Service) Rate(ctx context.Context, id int64, rating int, feedback string) (*model.AssistantRecord, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if err := validate(lengthRule{"feedback", feedback, 0, 1000}); err != nil {
		return nil, err
	}
	return s.store.RateAssistantRecord(ctx, id, rating, feedback)
}

type call struct {
	operation string
	tone      Tone
	prompt    string
	input     string
	opts      llm.Options
	metadata  map[string]any
}

// run 调用补全服务，成功后写入历史
func (s *Service) run(ctx context.Context, c call) (*Result, error) {
	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "assistant."+c.operation)
	log := logger.WithTrace(ctx, s.logger).With(zap.String("operation", c.operation))

	res, err := s.complete(ctx, c)
	otel.EndSpan(span, err)
	if err != nil {
		metrics.IncrementAssistantOperation(c.operation, "failed")
		log.Error("Assistant operation failed", zap.Error(err))
		return nil, err
	}
	metrics.IncrementAssistantOperation(c.operation, "success")
	log.Info("Assistant operation completed", zap.Int64("history_id", res.HistoryID))
	return res, nil
}

func (s *Service) complete(ctx context.Context, c call) (*Result, error) {
	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt(c.operation, c.tone)},
		{Role: llm.RoleUser, Content: c.prompt},
	}, c.opts)
	if err != nil {
		return nil, err
	}

	usage := &model.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	meta := map[string]any{"model": resp.Model}
	for k, v := range c.metadata {
		meta[k] = v
	}

	rec := &model.AssistantRecord{
		Operation: c.operation,
		Input:     c.input,
		Output:    resp.Content,
		Tone:      string(c.tone),
		Usage:     usage,
		Metadata:  meta,
	}
	if err := s.store.CreateAssistantRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("save assistant history: %w", err)
	}

	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return &Result{Content: resp.Content, Usage: usage, Metadata: out, HistoryID: rec.ID}, nil
}

// FailureReason 对外只给出失败类别
func FailureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrProviderFailure):
		return "text completion provider unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled or timed out"
	default:
		return "storage failure"
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func jsonSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}
