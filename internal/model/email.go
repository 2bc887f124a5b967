package model

import "time"

// 训练邮件类型
const (
	EmailTypeSprintCommitment = "sprint_commitment"
	EmailTypeSprintUpdate     = "sprint_update"
	EmailTypeRetrospective    = "retrospective"
	EmailTypePlanning         = "planning"
	EmailTypeOther            = "other"
)

// EmailTypes 允许上传的训练邮件类型
var EmailTypes = []string{
	EmailTypeSprintCommitment,
	EmailTypeSprintUpdate,
	EmailTypeRetrospective,
	EmailTypePlanning,
	EmailTypeOther,
}

// IsValidEmailType 检查邮件类型是否合法
func IsValidEmailType(t string) bool {
	for _, v := range EmailTypes {
		if v == t {
			return true
		}
	}
	return false
}

type TrainingEmail struct {
	ID          int64     `json:"id"`
	EmailType   string    `json:"email_type"`
	Subject     string    `json:"subject_line"`
	Content     string    `json:"content"`
	ContentHash string    `json:"content_hash"`
	SenderName  string    `json:"sender_name,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	IsProcessed bool      `json:"is_processed"`
	IsApproved  bool      `json:"is_approved"`
	Patterns    *Patterns `json:"extracted_patterns,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PatternVector 训练邮件的嵌入向量记录，每个 content_hash 唯一
type PatternVector struct {
	ID              int64     `json:"id"`
	PatternType     string    `json:"pattern_type"`
	ContentHash     string    `json:"content_hash"`
	Embedding       []float64 `json:"-"`
	Metadata        *Patterns `json:"metadata,omitempty"`
	ConfidenceScore float64   `json:"confidence_score"`
	Dimension       int       `json:"dimension"`
	SourceEmailID   *int64    `json:"source_email_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
