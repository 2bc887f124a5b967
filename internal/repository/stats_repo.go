package repository

import (
	"context"

	"sprintmail/internal/model"
)

// Stats 汇总仪表盘统计
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	st := &model.Stats{
		TemplatesByType: map[string]int{},
		Feedback:        model.FeedbackStats{Distribution: map[int]int{}},
	}

	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM email_training_data),
			(SELECT COUNT(*) FROM email_training_data WHERE is_processed),
			(SELECT COUNT(*) FROM email_templates),
			(SELECT COUNT(*) FROM email_pattern_vectors),
			(SELECT COUNT(*) FROM sprint_email_history),
			(SELECT COALESCE(AVG(confidence_score), 0)::float8 FROM email_templates),
			(SELECT COUNT(*) FROM sprint_email_history WHERE created_at > NOW() - INTERVAL '7 days')
	`).Scan(
		&st.TrainingEmails,
		&st.ProcessedEmails,
		&st.Templates,
		&st.PatternVectors,
		&st.GeneratedEmails,
		&st.AverageConfidence,
		&st.GeneratedLast7Days,
	)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `SELECT pattern_type, COUNT(*) FROM email_templates GROUP BY pattern_type`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			t string
			n int
		)
		if err := rows.Scan(&t, &n); err != nil {
			rows.Close()
			return nil, err
		}
		st.TemplatesByType[t] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(ctx, `
		SELECT (user_feedback->>'rating')::int AS rating, COUNT(*)
		FROM sprint_email_history
		WHERE user_feedback IS NOT NULL
		GROUP BY rating
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sum := 0
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return nil, err
		}
		st.Feedback.Distribution[rating] = n
		st.Feedback.Count += n
		sum += rating * n
	}
	if st.Feedback.Count > 0 {
		st.Feedback.AverageRating = float64(sum) / float64(st.Feedback.Count)
	}
	return st, rows.Err()
}
