package repository

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"sprintmail/internal/model"
)

func toVector(v []float64) pgvector.Vector {
	f := make([]float32, len(v))
	for i, x := range v {
		f[i] = float32(x)
	}
	return pgvector.NewVector(f)
}

func fromVector(v pgvector.Vector) []float64 {
	src := v.Slice()
	out := make([]float64, len(src))
	for i, x := range src {
		out[i] = float64(x)
	}
	return out
}

// ListPatternVectors 按 ID 顺序返回全部向量，供线性扫描
func (s *Store) ListPatternVectors(ctx context.Context) ([]model.PatternVector, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, pattern_type, content_hash, embedding, metadata, confidence_score, dimension, source_email_id, created_at
		FROM email_pattern_vectors
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.PatternVector
	for rows.Next() {
		var (
			v   model.PatternVector
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&v.ID,
			&v.PatternType,
			&v.ContentHash,
			&emb,
			&v.Metadata,
			&v.ConfidenceScore,
			&v.Dimension,
			&v.SourceEmailID,
			&v.CreatedAt,
		); err != nil {
			return nil, err
		}
		v.Embedding = fromVector(emb)
		out = append(out, v)
	}
	return out, rows.Err()
}
