package model

import "time"

// 通用写作助手的操作类型
const (
	OperationDraft     = "draft"
	OperationResponse  = "response"
	OperationAnalyze   = "analyze"
	OperationSummarize = "summarize"
	OperationTemplate  = "template"
)

type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// AssistantRecord 写作助手一次成功调用的历史，仅在生成成功后写入
type AssistantRecord struct {
	ID        int64          `json:"id"`
	Operation string         `json:"operation"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Tone      string         `json:"tone,omitempty"`
	Usage     *TokenUsage    `json:"ai_usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Rating    *int           `json:"rating"`
	Feedback  string         `json:"feedback,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// AssistantTemplate 写作助手生成的通用模板，占位符形如 [name]
type AssistantTemplate struct {
	ID           int64     `json:"id"`
	TemplateType string    `json:"template_type"`
	Name         string    `json:"name"`
	Content      string    `json:"content"`
	Placeholders []string  `json:"placeholders"`
	Context      string    `json:"context,omitempty"`
	UsageCount   int       `json:"usage_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
