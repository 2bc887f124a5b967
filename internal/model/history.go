package model

import "time"

// TemplateUsedFromScratch 未匹配到模板时记录的 template_used
const TemplateUsedFromScratch = "generated_from_scratch"

// Feedback 用户对生成结果的评分
type Feedback struct {
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// TemplateInfo 生成过程的匹配信息，同时作为 generation_metadata 存储
type TemplateInfo struct {
	MatchedTemplate      string   `json:"matched_template"`
	TemplateID           *int64   `json:"template_id,omitempty"`
	TemplateName         string   `json:"template_name,omitempty"`
	SimilarityScore      float64  `json:"similarity_score"`
	VariablesFilled      []string `json:"variables_filled,omitempty"`
	FromContext          []string `json:"variables_from_context,omitempty"`
	Generated            []string `json:"variables_generated,omitempty"`
	GeneratedFromScratch bool     `json:"generated_from_scratch"`
	Polished             bool     `json:"polished"`
}

// GenerationRecord 一次生成调用的历史记录
type GenerationRecord struct {
	ID           int64             `json:"id"`
	UserRequest  string            `json:"user_request"`
	Subject      string            `json:"generated_subject"`
	Content      string            `json:"generated_content"`
	TemplateUsed string            `json:"template_used"`
	TemplateID   *int64            `json:"template_id,omitempty"`
	Confidence   float64           `json:"ai_confidence"`
	Context      map[string]string `json:"context_data,omitempty"`
	Metadata     *TemplateInfo     `json:"generation_metadata,omitempty"`
	Feedback     *Feedback         `json:"user_feedback,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Stats 仪表盘统计
type Stats struct {
	TrainingEmails     int            `json:"training_emails"`
	ProcessedEmails    int            `json:"processed_emails"`
	Templates          int            `json:"templates"`
	TemplatesByType    map[string]int `json:"templates_by_type"`
	PatternVectors     int            `json:"pattern_vectors"`
	GeneratedEmails    int            `json:"generated_emails"`
	AverageConfidence  float64        `json:"average_confidence"`
	GeneratedLast7Days int            `json:"generated_last_7_days"`
	Feedback           FeedbackStats  `json:"feedback"`
}

type FeedbackStats struct {
	Count         int         `json:"count"`
	AverageRating float64     `json:"average_rating"`
	Distribution  map[int]int `json:"distribution"`
}
