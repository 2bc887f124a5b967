// Package generation 根据用户请求匹配模板、填充占位符、润色并生成主题
package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/placeholder"
	"sprintmail/internal/similarity"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/metrics"
	"sprintmail/pkg/otel"
	"sprintmail/pkg/trace"
)

const defaultSubject = "Sprint Email"

var (
	variableOptions    = llm.Options{Temperature: 0.7, MaxTokens: 150}
	polishOptions      = llm.Options{Temperature: 0.3, MaxTokens: 800}
	subjectOptions     = llm.Options{Temperature: 0.5, MaxTokens: 50}
	fromScratchOptions = llm.Options{Temperature: 0.7, MaxTokens: 1000}

	// 未匹配到模板时用于借鉴风格的类型
	styleReferenceTypes = map[string]bool{
		model.EmailTypeSprintCommitment: true,
		model.EmailTypeSprintUpdate:     true,
	}
)

const fromScratchConfidence = 0.5

// Store 生成流程需要的持久化能力
type Store interface {
	ListPatternVectors(ctx context.Context) ([]model.PatternVector, error)
	ListActiveTemplates(ctx context.Context) ([]model.EmailTemplate, error)
	IncrementTemplateUsage(ctx context.Context, id int64) error
	CreateGenerationRecord(ctx context.Context, r *model.GenerationRecord) error
}

type Email struct {
	Subject      string  `json:"subject"`
	Content      string  `json:"content"`
	TemplateUsed string  `json:"template_used"`
	Confidence   float64 `json:"confidence"`
}

// Result 失败时 Success 为 false 且 Error 为简短描述
type Result struct {
	Success      bool                `json:"success"`
	Email        *Email              `json:"email,omitempty"`
	TemplateInfo *model.TemplateInfo `json:"template_info,omitempty"`
	HistoryID    int64               `json:"history_id,omitempty"`
	Error        string              `json:"error,omitempty"`
}

type Pipeline struct {
	store  Store
	llm    llm.Completer
	embed  embedding.Func
	logger *zap.Logger
}

func NewPipeline(store Store, c llm.Completer, embed embedding.Func, logger *zap.Logger) *Pipeline {
	if embed == nil {
		embed = embedding.Embed
	}
	return &Pipeline{store: store, llm: c, embed: embed, logger: logger}
}

// Generate 永不返回 error；所有不可降级的失败都体现在 Result 中
func (p *Pipeline) Generate(ctx context.Context, request string, vars map[string]string) *Result {
	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "generation.generate")
	log := logger.WithTrace(ctx, p.logger)

	res, err := p.generate(ctx, request, vars)
	otel.EndSpan(span, err)
	if err != nil {
		metrics.IncrementEmailGenerated("failed")
		log.Error("Sprint email generation failed", zap.String("request", request), zap.Error(err))
		return &Result{Success: false, Error: "Failed to generate email: " + failureReason(err)}
	}
	return res
}

// failureReason 对外只给出失败类别，完整错误只写日志
func failureReason(err error) string {
	switch {
	case errors.Is(err, llm.ErrProviderFailure):
		return "text completion provider unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled or timed out"
	default:
		return "storage failure"
	}
}

func (p *Pipeline) generate(ctx context.Context, request string, vars map[string]string) (*Result, error) {
	vectors, err := p.store.ListPatternVectors(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pattern vectors: %w", err)
	}
	templates, err := p.store.ListActiveTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	ix := similarity.NewIndex(vectors, templates)
	match, ok := ix.BestMatch(p.embed(request))
	metrics.ObserveSimilarity(match.Score)

	if !ok {
		return p.fromScratch(ctx, request, vars, templates, vectors)
	}
	return p.fromTemplate(ctx, request, vars, match, vectors)
}

func (p *Pipeline) fromTemplate(ctx context.Context, request string, vars map[string]string, match similarity.Match, vectors []model.PatternVector) (*Result, error) {
	tmpl := match.Template
	hints := hintsFor(tmpl, vectors)
	log := logger.WithTrace(ctx, p.logger).With(zap.Int64("template_id", tmpl.ID), zap.Float64("similarity", match.Score))
	log.Info("Template matched", zap.String("pattern_type", tmpl.PatternType))

	names := placeholder.Extract(tmpl.Content)
	values := make(map[string]string, len(names))
	var fromContext, generated []string

	for _, name := range names {
		if v, ok := vars[name]; ok {
			values[name] = v
			fromContext = append(fromContext, name)
			metrics.IncrementPlaceholderFill("context")
			continue
		}

		text, err := llm.GenerateText(ctx, p.llm, variablePrompt(name, request, vars, hints), variableOptions)
		if err != nil {
			log.Warn("Placeholder generation failed", zap.String("placeholder", name), zap.Error(err))
			values[name] = "[" + name + "]"
			metrics.IncrementPlaceholderFill("fallback")
			continue
		}
		values[name] = strings.TrimSpace(text)
		generated = append(generated, name)
		metrics.IncrementPlaceholderFill("generated")
	}

	draft := placeholder.Fill(tmpl.Content, names, values)

	content := draft
	polished := false
	if text, err := llm.GenerateText(ctx, p.llm, polishPrompt(draft, request, hints.Tone), polishOptions); err != nil {
		log.Warn("Polish pass failed, using draft", zap.Error(err))
	} else {
		content = text
		polished = true
	}

	subject := p.subject(ctx, request, vars)

	if err := p.store.IncrementTemplateUsage(ctx, tmpl.ID); err != nil {
		return nil, fmt.Errorf("increment template usage: %w", err)
	}

	templateID := tmpl.ID
	info := &model.TemplateInfo{
		MatchedTemplate: tmpl.PatternType,
		TemplateID:      &templateID,
		TemplateName:    tmpl.Name,
		SimilarityScore: match.Score,
		VariablesFilled: names,
		FromContext:     fromContext,
		Generated:       generated,
		Polished:        polished,
	}
	email := &Email{
		Subject:      subject,
		Content:      content,
		TemplateUsed: tmpl.PatternType,
		Confidence:   match.Score,
	}

	historyID, err := p.record(ctx, request, vars, email, &templateID, info)
	if err != nil {
		return nil, err
	}

	metrics.IncrementEmailGenerated("template")
	return &Result{Success: true, Email: email, TemplateInfo: info, HistoryID: historyID}, nil
}

func (p *Pipeline) fromScratch(ctx context.Context, request string, vars map[string]string, templates []model.EmailTemplate, vectors []model.PatternVector) (*Result, error) {
	log := logger.WithTrace(ctx, p.logger)
	log.Info("No template above threshold, generating from scratch")

	var hints *styleHints
	for _, t := range templates {
		if styleReferenceTypes[t.PatternType] {
			h := hintsFor(t, vectors)
			hints = &h
			break
		}
	}

	content, err := llm.GenerateText(ctx, p.llm, fromScratchPrompt(request, vars, hints), fromScratchOptions)
	if err != nil {
		return nil, err
	}

	subject := p.subject(ctx, request, vars)

	info := &model.TemplateInfo{
		MatchedTemplate:      "none",
		SimilarityScore:      0,
		GeneratedFromScratch: true,
	}
	email := &Email{
		Subject:      subject,
		Content:      content,
		TemplateUsed: model.TemplateUsedFromScratch,
		Confidence:   fromScratchConfidence,
	}

	historyID, err := p.record(ctx, request, vars, email, nil, info)
	if err != nil {
		return nil, err
	}

	metrics.IncrementEmailGenerated("from_scratch")
	return &Result{Success: true, Email: email, TemplateInfo: info, HistoryID: historyID}, nil
}

// subject 失败时返回 "Sprint Email"
func (p *Pipeline) subject(ctx context.Context, request string, vars map[string]string) string {
	text, err := llm.GenerateText(ctx, p.llm, subjectPrompt(request, vars), subjectOptions)
	if err != nil {
		logger.WithTrace(ctx, p.logger).Warn("Subject generation failed", zap.Error(err))
		return defaultSubject
	}
	return strings.TrimSpace(text)
}

func (p *Pipeline) record(ctx context.Context, request string, vars map[string]string, email *Email, templateID *int64, info *model.TemplateInfo) (int64, error) {
	rec := &model.GenerationRecord{
		UserRequest:  request,
		Subject:      email.Subject,
		Content:      email.Content,
		TemplateUsed: email.TemplateUsed,
		TemplateID:   templateID,
		Confidence:   email.Confidence,
		Context:      vars,
		Metadata:     info,
	}
	if err := p.store.CreateGenerationRecord(ctx, rec); err != nil {
		return 0, fmt.Errorf("save generation history: %w", err)
	}
	return rec.ID, nil
}

// hintsFor 优先使用模板来源邮件的分析结果，其次使用模板自身的风格属性
func hintsFor(t model.EmailTemplate, vectors []model.PatternVector) styleHints {
	hints := styleHints{Tone: t.Style.Tone}
	if t.Style.Structure != "" {
		hints.StructureElements = []string{t.Style.Structure}
	}

	if t.SourceEmailID == nil {
		return hints
	}
	for _, v := range vectors {
		if v.SourceEmailID == nil || *v.SourceEmailID != *t.SourceEmailID || v.Metadata == nil {
			continue
		}
		if v.Metadata.Tone != "" {
			hints.Tone = v.Metadata.Tone
		}
		hints.TechnicalTerms = v.Metadata.TechnicalTerms
		if len(v.Metadata.StructureElements) > 0 {
			hints.StructureElements = v.Metadata.StructureElements
		}
		break
	}
	return hints
}
