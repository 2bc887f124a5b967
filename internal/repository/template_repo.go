package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"sprintmail/internal/model"
)

const templateColumns = `id, pattern_type, template_name, template_content, variables, style_attributes,
	confidence_score, usage_count, success_rate, source_email_id, is_active, created_at, updated_at`

func (s *Store) queryTemplates(ctx context.Context, query string, args ...any) ([]model.EmailTemplate, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EmailTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(row pgx.Row) (*model.EmailTemplate, error) {
	var t model.EmailTemplate
	err := row.Scan(
		&t.ID,
		&t.PatternType,
		&t.Name,
		&t.Content,
		&t.Variables,
		&t.Style,
		&t.Confidence,
		&t.UsageCount,
		&t.SuccessRate,
		&t.SourceEmailID,
		&t.IsActive,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

// ListActiveTemplates 按 ID 升序返回启用的模板，同类型取第一个
func (s *Store) ListActiveTemplates(ctx context.Context) ([]model.EmailTemplate, error) {
	return s.queryTemplates(ctx, `SELECT `+templateColumns+` FROM email_templates WHERE is_active = TRUE ORDER BY id ASC`)
}

// ListTemplatesByConfidence 按置信度降序返回全部模板
func (s *Store) ListTemplatesByConfidence(ctx context.Context) ([]model.EmailTemplate, error) {
	return s.queryTemplates(ctx, `SELECT `+templateColumns+` FROM email_templates ORDER BY confidence_score DESC, id ASC`)
}

// IncrementTemplateUsage 原子递增使用次数
func (s *Store) IncrementTemplateUsage(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE email_templates SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeSuccessRate success_rate = 使用该模板的历史记录平均评分 / 5
func (s *Store) RecomputeSuccessRate(ctx context.Context, templateID int64) (float64, error) {
	var rate float64
	err := s.db.QueryRow(ctx, `
		UPDATE email_templates
		SET success_rate = COALESCE((
			SELECT AVG((user_feedback->>'rating')::numeric) / 5
			FROM sprint_email_history
			WHERE template_id = $1 AND user_feedback IS NOT NULL
		), 0),
		updated_at = NOW()
		WHERE id = $1
		RETURNING success_rate
	`, templateID).Scan(&rate)
	if err != nil {
		return 0, mapError(err)
	}
	return rate, nil
}
