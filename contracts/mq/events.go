package mq

import "time"

// Routing keys
const (
	TrainingEmailUploaded = "training_email.uploaded"
	TrainingEmailAnalyzed = "training_email.analyzed"
	SprintEmailGenerated  = "sprint_email.generated"
	FeedbackSubmitted     = "feedback.submitted"
)

// Aggregate types for outbox_events.aggregate_type
const (
	AggregateTrainingEmail = "training_email"
	AggregateHistory       = "sprint_email_history"
)

// TrainingEmailUploadedPayload 训练邮件上传后等待分析
type TrainingEmailUploadedPayload struct {
	TrainingEmailID int64     `json:"training_email_id"`
	EmailType       string    `json:"email_type"`
	UploadedAt      time.Time `json:"uploaded_at"`
	TraceID         string    `json:"trace_id,omitempty"`
}

// TrainingEmailAnalyzedPayload 分析结果已落库
type TrainingEmailAnalyzedPayload struct {
	TrainingEmailID int64   `json:"training_email_id"`
	VectorID        int64   `json:"vector_id"`
	TemplateID      int64   `json:"template_id"`
	PatternType     string  `json:"pattern_type"`
	Confidence      float64 `json:"confidence"`
	TraceID         string  `json:"trace_id,omitempty"`
}

// SprintEmailGeneratedPayload 一次生成完成
type SprintEmailGeneratedPayload struct {
	HistoryID    int64   `json:"history_id"`
	TemplateUsed string  `json:"template_used"`
	TemplateID   *int64  `json:"template_id,omitempty"`
	Confidence   float64 `json:"confidence"`
	TraceID      string  `json:"trace_id,omitempty"`
}

// FeedbackSubmittedPayload 用户评分，worker 据此重算模板成功率
type FeedbackSubmittedPayload struct {
	HistoryID  int64  `json:"history_id"`
	TemplateID *int64 `json:"template_id,omitempty"`
	Rating     int    `json:"rating"`
	TraceID    string `json:"trace_id,omitempty"`
}
