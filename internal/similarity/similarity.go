// Package similarity 余弦相似度与模板最近邻查找
package similarity

import (
	"math"
	"sort"

	"sprintmail/internal/model"
)

// Threshold 匹配分数必须严格大于该值
const Threshold = 0.7

// Cosine 返回 dot(a,b)/(|a||b|)；任一向量模为 0 或长度不一致时返回 0
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, ma, mb float64
	for i := range a {
		dot += a[i] * b[i]
		ma += a[i] * a[i]
		mb += b[i] * b[i]
	}
	if ma == 0 || mb == 0 {
		return 0
	}
	return dot / (math.Sqrt(ma) * math.Sqrt(mb))
}

// Match 最佳匹配的向量、其类型对应的模板及分数
type Match struct {
	Vector   model.PatternVector
	Template model.EmailTemplate
	Score    float64
}

// Index 对全部向量线性扫描，不按类型过滤
type Index struct {
	vectors []model.PatternVector
	byType  map[string]model.EmailTemplate
}

// NewIndex 每种 pattern type 取 ID 最小的模板
func NewIndex(vectors []model.PatternVector, templates []model.EmailTemplate) *Index {
	sorted := append([]model.EmailTemplate(nil), templates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	byType := make(map[string]model.EmailTemplate, len(sorted))
	for _, t := range sorted {
		if _, ok := byType[t.PatternType]; !ok {
			byType[t.PatternType] = t
		}
	}
	return &Index{vectors: vectors, byType: byType}
}

// TemplateFor 返回该类型的首个模板
func (ix *Index) TemplateFor(patternType string) (model.EmailTemplate, bool) {
	t, ok := ix.byType[patternType]
	return t, ok
}

// Len 向量数量
func (ix *Index) Len() int { return len(ix.vectors) }

// BestMatch 返回分数最高且能解析到模板的记录。
// 分数相同时先出现的记录胜出；仅当分数 > Threshold 时 ok 为 true，
// 否则返回的 Match 仍携带观察到的最高分（无候选时为 0）。
func (ix *Index) BestMatch(query []float64) (Match, bool) {
	var best Match
	found := false

	for _, v := range ix.vectors {
		tmpl, ok := ix.byType[v.PatternType]
		if !ok {
			continue
		}
		score := Cosine(query, v.Embedding)
		if !found || score > best.Score {
			best = Match{Vector: v, Template: tmpl, Score: score}
			found = true
		}
	}

	if !found || best.Score <= Threshold {
		return best, false
	}
	return best, true
}
