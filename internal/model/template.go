package model

import "time"

type StyleAttributes struct {
	Tone      string `json:"tone"`
	Structure string `json:"structure"`
}

// EmailTemplate 带 {{variable}} 占位符的可复用邮件模板
type EmailTemplate struct {
	ID            int64           `json:"id"`
	PatternType   string          `json:"pattern_type"`
	Name          string          `json:"template_name"`
	Content       string          `json:"template_content"`
	Variables     []string        `json:"variables"`
	Style         StyleAttributes `json:"style_attributes"`
	Confidence    float64         `json:"confidence_score"`
	UsageCount    int             `json:"usage_count"`
	SuccessRate   float64         `json:"success_rate"`
	SourceEmailID *int64          `json:"source_email_id,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
