package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/model"
)

const historyColumns = `id, user_request, generated_subject, generated_content, template_used, template_id,
	ai_confidence, context_data, generation_metadata, user_feedback, created_at, updated_at`

func scanHistory(row pgx.Row) (*model.GenerationRecord, error) {
	var r model.GenerationRecord
	err := row.Scan(
		&r.ID,
		&r.UserRequest,
		&r.Subject,
		&r.Content,
		&r.TemplateUsed,
		&r.TemplateID,
		&r.Confidence,
		&r.Context,
		&r.Metadata,
		&r.Feedback,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

// CreateGenerationRecord 写入生成历史及 sprint_email.generated 事件
func (s *Store) CreateGenerationRecord(ctx context.Context, r *model.GenerationRecord) error {
	contextJSON, err := json.Marshal(r.Context)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}
	metaJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	return s.inTx(ctx, "insert", "sprint_email_history", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO sprint_email_history
				(user_request, generated_subject, generated_content, template_used, template_id,
				 ai_confidence, context_data, generation_metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`, r.UserRequest, r.Subject, r.Content, r.TemplateUsed, r.TemplateID, r.Confidence, contextJSON, metaJSON,
		).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return mapError(err)
		}

		return s.emit(ctx, tx, mqcontracts.AggregateHistory, r.ID, mqcontracts.SprintEmailGenerated,
			mqcontracts.SprintEmailGeneratedPayload{
				HistoryID:    r.ID,
				TemplateUsed: r.TemplateUsed,
				TemplateID:   r.TemplateID,
				Confidence:   r.Confidence,
				TraceID:      traceID(ctx),
			})
	})
}

// GetGenerationRecord 按 ID 查询历史
func (s *Store) GetGenerationRecord(ctx context.Context, id int64) (*model.GenerationRecord, error) {
	return scanHistory(s.db.QueryRow(ctx, `SELECT `+historyColumns+` FROM sprint_email_history WHERE id = $1`, id))
}

// ListHistory 按创建时间倒序分页，同时返回总数
func (s *Store) ListHistory(ctx context.Context, limit, offset int) ([]model.GenerationRecord, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM sprint_email_history`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT `+historyColumns+`
		FROM sprint_email_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.GenerationRecord
	for rows.Next() {
		r, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// SaveFeedback 覆盖历史记录的反馈并写入 feedback.submitted 事件；记录不存在返回 ErrNotFound
func (s *Store) SaveFeedback(ctx context.Context, historyID int64, fb model.Feedback) (*model.GenerationRecord, error) {
	fbJSON, err := json.Marshal(fb)
	if err != nil {
		return nil, fmt.Errorf("marshal feedback: %w", err)
	}

	var rec *model.GenerationRecord
	err = s.inTx(ctx, "update", "sprint_email_history", func(tx pgx.Tx) error {
		r, err := scanHistory(tx.QueryRow(ctx, `
			UPDATE sprint_email_history
			SET user_feedback = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+historyColumns, historyID, fbJSON))
		if err != nil {
			return err
		}
		rec = r

		return s.emit(ctx, tx, mqcontracts.AggregateHistory, r.ID, mqcontracts.FeedbackSubmitted,
			mqcontracts.FeedbackSubmittedPayload{
				HistoryID:  r.ID,
				TemplateID: r.TemplateID,
				Rating:     fb.Rating,
				TraceID:    traceID(ctx),
			})
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}
