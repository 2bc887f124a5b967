// Package learning 训练邮件的上传与分析：提取模式、生成嵌入、合成模板并原子落库
package learning

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/pkg/logger"
	"sprintmail/pkg/metrics"
	"sprintmail/pkg/otel"
)

var (
	// ErrAnalysisFailure 模式提取时补全服务失败，该记录的分析中止
	ErrAnalysisFailure  = errors.New("analysis failed")
	ErrAlreadyProcessed = errors.New("training email already processed")
	ErrInvalidInput     = errors.New("invalid input")
)

const minContentLength = 50

// Store 分析流程需要的持久化能力
type Store interface {
	CreateTrainingEmail(ctx context.Context, e *model.TrainingEmail) error
	GetTrainingEmail(ctx context.Context, id int64) (*model.TrainingEmail, error)
	ListPendingTrainingEmails(ctx context.Context) ([]model.TrainingEmail, error)
	SaveAnalysis(ctx context.Context, a *repository.Analysis) error
}

type Service struct {
	store     Store
	extractor *PatternExtractor
	synth     *TemplateSynthesizer
	embed     embedding.Func
	logger    *zap.Logger
}

func NewService(store Store, c llm.Completer, embed embedding.Func, logger *zap.Logger) *Service {
	if embed == nil {
		embed = embedding.Embed
	}
	return &Service{
		store:     store,
		extractor: NewPatternExtractor(c, logger),
		synth:     NewTemplateSynthesizer(c, logger),
		embed:     embed,
		logger:    logger,
	}
}

// AnalysisResult 一次分析的结果
type AnalysisResult struct {
	TrainingEmailID    int64          `json:"training_email_id"`
	VectorID           int64          `json:"vector_id"`
	TemplateID         int64          `json:"template_id"`
	TemplateName       string         `json:"template_name"`
	TemplateFallback   bool           `json:"template_fallback"`
	Patterns           model.Patterns `json:"patterns"`
	EmbeddingDimension int            `json:"embedding_dimension"`
	Status             string         `json:"status"`
}

// Analyze 分析一封未处理的训练邮件。
// 记录不存在返回 repository.ErrNotFound；已处理返回 ErrAlreadyProcessed；
// 提取失败返回 ErrAnalysisFailure；落库失败时 processed 保持 false。
func (s *Service) Analyze(ctx context.Context, id int64) (res *AnalysisResult, err error) {
	ctx, span := otel.StartSpan(ctx, "learning.analyze")
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, s.logger).With(zap.Int64("training_email_id", id))

	email, err := s.store.GetTrainingEmail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load training email %d: %w", id, err)
	}
	if email.IsProcessed {
		return nil, fmt.Errorf("training email %d: %w", id, ErrAlreadyProcessed)
	}

	log.Info("Analyzing training email", zap.String("email_type", email.EmailType))

	patterns, err := s.extractor.Extract(ctx, email)
	if err != nil {
		metrics.IncrementTrainingEmailAnalyzed("failed")
		return nil, err
	}

	vec := s.embed(email.Content)
	tmpl := s.synth.Synthesize(ctx, email, patterns)

	sourceID := email.ID
	analysis := &repository.Analysis{
		Email:    email,
		Patterns: patterns,
		Vector: &model.PatternVector{
			PatternType:     email.EmailType,
			ContentHash:     email.ContentHash,
			Embedding:       vec,
			Metadata:        &patterns,
			ConfidenceScore: patterns.Confidence(),
			SourceEmailID:   &sourceID,
		},
		Template: &model.EmailTemplate{
			PatternType:   email.EmailType,
			Name:          tmpl.Name,
			Content:       tmpl.Content,
			Variables:     tmpl.Variables,
			Style:         tmpl.Style,
			Confidence:    patterns.Confidence(),
			SourceEmailID: &sourceID,
		},
	}

	if err := s.store.SaveAnalysis(ctx, analysis); err != nil {
		metrics.IncrementTrainingEmailAnalyzed("failed")
		log.Error("Failed to store analysis results", zap.Error(err))
		return nil, fmt.Errorf("store analysis for training email %d: %w", id, err)
	}

	metrics.IncrementTrainingEmailAnalyzed("success")
	log.Info("Analysis complete",
		zap.Int64("vector_id", analysis.Vector.ID),
		zap.Int64("template_id", analysis.Template.ID),
		zap.Bool("template_fallback", tmpl.Fallback),
	)

	return &AnalysisResult{
		TrainingEmailID:    id,
		VectorID:           analysis.Vector.ID,
		TemplateID:         analysis.Template.ID,
		TemplateName:       tmpl.Name,
		TemplateFallback:   tmpl.Fallback,
		Patterns:           patterns,
		EmbeddingDimension: len(vec),
		Status:             "success",
	}, nil
}

// AnalyzeOutcome AnalyzeAll 中单封邮件的结果
type AnalyzeOutcome struct {
	EmailID int64           `json:"email_id"`
	Status  string          `json:"status"`
	Result  *AnalysisResult `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// AnalyzeAll 依次分析所有未处理且已批准的邮件，单封失败不影响其余
func (s *Service) AnalyzeAll(ctx context.Context) ([]AnalyzeOutcome, error) {
	pending, err := s.store.ListPendingTrainingEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending training emails: %w", err)
	}

	outcomes := make([]AnalyzeOutcome, 0, len(pending))
	for _, e := range pending {
		res, err := s.Analyze(ctx, e.ID)
		if err != nil {
			s.logger.Warn("Training email analysis failed", zap.Int64("training_email_id", e.ID), zap.Error(err))
			outcomes = append(outcomes, AnalyzeOutcome{EmailID: e.ID, Status: "failed", Error: outcomeReason(err)})
			continue
		}
		outcomes = append(outcomes, AnalyzeOutcome{EmailID: e.ID, Status: "success", Result: res})
	}
	return outcomes, nil
}

// outcomeReason 批量结果只暴露失败类别
func outcomeReason(err error) string {
	switch {
	case errors.Is(err, ErrAnalysisFailure):
		return "analysis failed: text completion provider unavailable"
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, repository.ErrConflict):
		return "training email already processed"
	case errors.Is(err, repository.ErrNotFound):
		return "training email not found"
	default:
		return "storage failure"
	}
}

// UploadInput 上传训练邮件的参数
type UploadInput struct {
	Subject    string
	Content    string
	EmailType  string
	SenderName string
	Recipient  string
}

// Validate 校验上传参数
func (in UploadInput) Validate() error {
	switch {
	case strings.TrimSpace(in.Subject) == "":
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	case utf8.RuneCountInString(in.Subject) > 200:
		return fmt.Errorf("%w: subject must be at most 200 characters", ErrInvalidInput)
	case utf8.RuneCountInString(in.Content) < minContentLength:
		return fmt.Errorf("%w: content must be at least %d characters", ErrInvalidInput, minContentLength)
	case !model.IsValidEmailType(in.EmailType):
		return fmt.Errorf("%w: email_type must be one of %s", ErrInvalidInput, strings.Join(model.EmailTypes, ", "))
	case utf8.RuneCountInString(in.SenderName) > 100:
		return fmt.Errorf("%w: sender_name must be at most 100 characters", ErrInvalidInput)
	case utf8.RuneCountInString(in.Recipient) > 200:
		return fmt.Errorf("%w: recipient must be at most 200 characters", ErrInvalidInput)
	}
	return nil
}

// ContentHash 内容的 md5 十六进制摘要，作为去重键
func ContentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Upload 存储一封未处理、已批准的训练邮件；分析由 training_email.uploaded 事件异步触发。
// 内容重复返回 repository.ErrDuplicate。
func (s *Service) Upload(ctx context.Context, in UploadInput) (*model.TrainingEmail, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	sender := in.SenderName
	if sender == "" {
		sender = "User"
	}
	email := &model.TrainingEmail{
		EmailType:   in.EmailType,
		Subject:     in.Subject,
		Content:     in.Content,
		ContentHash: ContentHash(in.Content),
		SenderName:  sender,
		Recipient:   in.Recipient,
		IsApproved:  true,
	}
	if err := s.store.CreateTrainingEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("create training email: %w", err)
	}

	logger.WithTrace(ctx, s.logger).Info("Training email uploaded",
		zap.Int64("training_email_id", email.ID),
		zap.String("email_type", email.EmailType),
	)
	return email, nil
}
