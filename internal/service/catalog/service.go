// Package catalog 模板列表、生成历史、反馈与统计的查询服务
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"sprintmail/internal/model"
	"sprintmail/pkg/logger"
)

const (
	templatePreviewLen = 150
	historyPreviewLen  = 200

	DefaultLimit = 20
	MaxLimit     = 100

	maxCommentLen = 1000
)

var ErrInvalidInput = errors.New("invalid input")

type Store interface {
	ListTemplatesByConfidence(ctx context.Context) ([]model.EmailTemplate, error)
	ListHistory(ctx context.Context, limit, offset int) ([]model.GenerationRecord, int, error)
	SaveFeedback(ctx context.Context, historyID int64, fb model.Feedback) (*model.GenerationRecord, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

type TemplateSummary struct {
	ID          int64                 `json:"id"`
	PatternType string                `json:"email_type"`
	Name        string                `json:"template_name"`
	Preview     string                `json:"template_preview"`
	Variables   []string              `json:"variables"`
	Style       model.StyleAttributes `json:"style_attributes"`
	Confidence  float64               `json:"confidence"`
	UsageCount  int                   `json:"usage_count"`
	SuccessRate float64               `json:"success_rate"`
	CreatedAt   time.Time             `json:"created_at"`
}

type TemplateList struct {
	Templates  []TemplateSummary `json:"templates"`
	TotalCount int               `json:"total_count"`
}

type HistoryItem struct {
	ID           int64           `json:"id"`
	Request      string          `json:"request"`
	Subject      string          `json:"subject"`
	Preview      string          `json:"content_preview"`
	TemplateUsed string          `json:"template_used"`
	Confidence   float64         `json:"confidence"`
	Feedback     *model.Feedback `json:"feedback"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

type HistoryPage struct {
	History    []HistoryItem `json:"history"`
	Pagination Pagination    `json:"pagination"`
}

type Service struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, now: time.Now, logger: logger}
}

// ListTemplates 按置信度降序返回模板摘要
func (s *Service) ListTemplates(ctx context.Context) (*TemplateList, error) {
	templates, err := s.store.ListTemplatesByConfidence(ctx)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}

	out := make([]TemplateSummary, 0, len(templates))
	for _, t := range templates {
		out = append(out, TemplateSummary{
			ID:          t.ID,
			PatternType: t.PatternType,
			Name:        t.Name,
			Preview:     Preview(t.Content, templatePreviewLen),
			Variables:   t.Variables,
			Style:       t.Style,
			Confidence:  t.Confidence,
			UsageCount:  t.UsageCount,
			SuccessRate: t.SuccessRate,
			CreatedAt:   t.CreatedAt,
		})
	}
	return &TemplateList{Templates: out, TotalCount: len(out)}, nil
}

// History 最新记录在前；limit 超界时收敛到 [1, MaxLimit]
func (s *Service) History(ctx context.Context, limit, offset int) (*HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := s.store.ListHistory(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	items := make([]HistoryItem, 0, len(records))
	for _, r := range records {
		items = append(items, HistoryItem{
			ID:           r.ID,
			Request:      r.UserRequest,
			Subject:      r.Subject,
			Preview:      Preview(r.Content, historyPreviewLen),
			TemplateUsed: r.TemplateUsed,
			Confidence:   r.Confidence,
			Feedback:     r.Feedback,
			CreatedAt:    r.CreatedAt,
		})
	}

	return &HistoryPage{
		History: items,
		Pagination: Pagination{
			Total:   total,
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+limit < total,
		},
	}, nil
}

// SubmitFeedback 记录不存在时返回 repository.ErrNotFound
func (s *Service) SubmitFeedback(ctx context.Context, historyID int64, rating int, comment string) (*model.GenerationRecord, error) {
	if rating < 1 || rating > 5 {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	if utf8.RuneCountInString(comment) > maxCommentLen {
		return nil, fmt.Errorf("%w: feedback must be at most %d characters", ErrInvalidInput, maxCommentLen)
	}

	rec, err := s.store.SaveFeedback(ctx, historyID, model.Feedback{
		Rating:      rating,
		Comment:     strings.TrimSpace(comment),
		SubmittedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	logger.WithTrace(ctx, s.logger).Info("Feedback submitted",
		zap.Int64("history_id", historyID),
		zap.Int("rating", rating),
	)
	return rec, nil
}

func (s *Service) Stats(ctx context.Context) (*model.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("load stats: %w", err)
	}
	return st, nil
}

// Preview 截取前 n 个字符，被截断时追加 "..."
func Preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
