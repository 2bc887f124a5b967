package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"sprintmail/internal/model"
	"sprintmail/pkg/otel"
)

const assistantRecordColumns = `id, operation, input, output, tone, ai_usage, metadata, rating, feedback, created_at, updated_at`

const assistantTemplateColumns = `id, template_type, name, content, placeholders, context, usage_count, created_at, updated_at`

func scanAssistantRecord(row pgx.Row) (*model.AssistantRecord, error) {
	var r model.AssistantRecord
	err := row.Scan(
		&r.ID,
		&r.Operation,
		&r.Input,
		&r.Output,
		&r.Tone,
		&r.Usage,
		&r.Metadata,
		&r.Rating,
		&r.Feedback,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func scanAssistantTemplate(row pgx.Row) (*model.AssistantTemplate, error) {
	var t model.AssistantTemplate
	err := row.Scan(
		&t.ID,
		&t.TemplateType,
		&t.Name,
		&t.Content,
		&t.Placeholders,
		&t.Context,
		&t.UsageCount,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &t, nil
}

// CreateAssistantRecord 写入写作助手历史
func (s *Store) CreateAssistantRecord(ctx context.Context, r *model.AssistantRecord) (err error) {
	usageJSON, err := json.Marshal(r.Usage)
	if err != nil {
		return fmt.Errorf("marshal usage: %w", err)
	}
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	ctx, span := otel.DBSpan(ctx, "insert", "email_history")
	defer func() { otel.EndSpan(span, err) }()

	err = s.db.QueryRow(ctx, `
		INSERT INTO email_history (operation, input, output, tone, ai_usage, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, r.Operation, r.Input, r.Output, r.Tone, usageJSON, metaJSON,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	return mapError(err)
}

// ListAssistantRecords 最新在前
func (s *Store) ListAssistantRecords(ctx context.Context, limit int) ([]model.AssistantRecord, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+assistantRecordColumns+`
		FROM email_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AssistantRecord
	for rows.Next() {
		r, err := scanAssistantRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// RateAssistantRecord 覆盖评分与反馈；记录不存在返回 ErrNotFound
func (s *Store) RateAssistantRecord(ctx context.Context, id int64, rating int, feedback string) (*model.AssistantRecord, error) {
	return scanAssistantRecord(s.db.QueryRow(ctx, `
		UPDATE email_history
		SET rating = $2, feedback = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+assistantRecordColumns, id, rating, feedback))
}

func (s *Store) FirstAssistantTemplate(ctx context.Context, templateType string) (*model.AssistantTemplate, error) {
	return scanAssistantTemplate(s.db.QueryRow(ctx, `
		SELECT `+assistantTemplateColumns+`
		FROM assistant_templates
		WHERE template_type = $1
		ORDER BY id
		LIMIT 1
	`, templateType))
}

func (s *Store) CreateAssistantTemplate(ctx context.Context, t *model.AssistantTemplate) error {
	if t.Placeholders == nil {
		t.Placeholders = []string{}
	}
	placeholdersJSON, err := json.Marshal(t.Placeholders)
	if err != nil {
		return fmt.Errorf("marshal placeholders: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO assistant_templates (template_type, name, content, placeholders, context)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, usage_count, created_at, updated_at
	`, t.TemplateType, t.Name, t.Content, placeholdersJSON, t.Context,
	).Scan(&t.ID, &t.UsageCount, &t.CreatedAt, &t.UpdatedAt)
	return mapError(err)
}

func (s *Store) IncrementAssistantTemplateUsage(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE assistant_templates SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
