package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/model"
)

const trainingEmailColumns = `id, email_type, subject_line, content, content_hash, sender_name, recipient,
	is_processed, is_approved, extracted_patterns, created_at, updated_at`

func scanTrainingEmail(row pgx.Row) (*model.TrainingEmail, error) {
	var e model.TrainingEmail
	err := row.Scan(
		&e.ID,
		&e.EmailType,
		&e.Subject,
		&e.Content,
		&e.ContentHash,
		&e.SenderName,
		&e.Recipient,
		&e.IsProcessed,
		&e.IsApproved,
		&e.Patterns,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &e, nil
}

// CreateTrainingEmail 插入训练邮件并写入 training_email.uploaded 事件。
// content_hash 冲突返回 ErrDuplicate。
func (s *Store) CreateTrainingEmail(ctx context.Context, e *model.TrainingEmail) error {
	return s.inTx(ctx, "insert", "email_training_data", func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO email_training_data
				(email_type, subject_line, content, content_hash, sender_name, recipient, is_processed, is_approved)
			VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
			RETURNING id, created_at, updated_at
		`, e.EmailType, e.Subject, e.Content, e.ContentHash, e.SenderName, e.Recipient, e.IsApproved,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return mapError(err)
		}

		return s.emit(ctx, tx, mqcontracts.AggregateTrainingEmail, e.ID, mqcontracts.TrainingEmailUploaded,
			mqcontracts.TrainingEmailUploadedPayload{
				TrainingEmailID: e.ID,
				EmailType:       e.EmailType,
				UploadedAt:      e.CreatedAt,
				TraceID:         traceID(ctx),
			})
	})
}

// GetTrainingEmail 按 ID 查询，不存在返回 ErrNotFound
func (s *Store) GetTrainingEmail(ctx context.Context, id int64) (*model.TrainingEmail, error) {
	row := s.db.QueryRow(ctx, `SELECT `+trainingEmailColumns+` FROM email_training_data WHERE id = $1`, id)
	return scanTrainingEmail(row)
}

// ListPendingTrainingEmails 返回未处理且已批准的训练邮件
func (s *Store) ListPendingTrainingEmails(ctx context.Context) ([]model.TrainingEmail, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+trainingEmailColumns+`
		FROM email_training_data
		WHERE is_processed = FALSE AND is_approved = TRUE
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TrainingEmail
	for rows.Next() {
		e, err := scanTrainingEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Analysis 一次分析需要原子落库的全部结果
type Analysis struct {
	Email    *model.TrainingEmail
	Patterns model.Patterns
	Vector   *model.PatternVector
	Template *model.EmailTemplate
}

// SaveAnalysis 在一个事务中写入向量、模板、processed 标记以及 training_email.analyzed 事件。
// 任一步失败则全部回滚，训练邮件保持未处理。
func (s *Store) SaveAnalysis(ctx context.Context, a *Analysis) error {
	patternsJSON, err := json.Marshal(a.Patterns)
	if err != nil {
		return fmt.Errorf("marshal patterns: %w", err)
	}
	variablesJSON, err := json.Marshal(a.Template.Variables)
	if err != nil {
		return fmt.Errorf("marshal variables: %w", err)
	}
	styleJSON, err := json.Marshal(a.Template.Style)
	if err != nil {
		return fmt.Errorf("marshal style: %w", err)
	}

	return s.inTx(ctx, "insert", "email_pattern_vectors", func(tx pgx.Tx) error {
		v := a.Vector
		err := tx.QueryRow(ctx, `
			INSERT INTO email_pattern_vectors
				(pattern_type, content_hash, embedding, metadata, confidence_score, dimension, source_email_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, v.PatternType, v.ContentHash, toVector(v.Embedding), patternsJSON, v.ConfidenceScore, len(v.Embedding), v.SourceEmailID,
		).Scan(&v.ID, &v.CreatedAt)
		if err != nil {
			return mapError(err)
		}
		v.Dimension = len(v.Embedding)

		t := a.Template
		err = tx.QueryRow(ctx, `
			INSERT INTO email_templates
				(pattern_type, template_name, template_content, variables, style_attributes,
				 confidence_score, usage_count, success_rate, source_email_id, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, 0, 0, $7, TRUE)
			RETURNING id, created_at, updated_at
		`, t.PatternType, t.Name, t.Content, variablesJSON, styleJSON, t.Confidence, t.SourceEmailID,
		).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return mapError(err)
		}
		t.IsActive = true

		tag, err := tx.Exec(ctx, `
			UPDATE email_training_data
			SET is_processed = TRUE, extracted_patterns = $2, updated_at = $3
			WHERE id = $1 AND is_processed = FALSE
		`, a.Email.ID, patternsJSON, time.Now())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: training email %d already processed", ErrConflict, a.Email.ID)
		}

		return s.emit(ctx, tx, mqcontracts.AggregateTrainingEmail, a.Email.ID, mqcontracts.TrainingEmailAnalyzed,
			mqcontracts.TrainingEmailAnalyzedPayload{
				TrainingEmailID: a.Email.ID,
				VectorID:        v.ID,
				TemplateID:      t.ID,
				PatternType:     v.PatternType,
				Confidence:      v.ConfidenceScore,
				TraceID:         traceID(ctx),
			})
	})
}
