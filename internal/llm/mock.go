package llm

import (
	"context"
	"strings"
)

const (
	mockEmailResponse = "Subject: Weekly Sprint Update\n\nDear Team,\n\nI hope this email finds you well. Here's our weekly sprint update:\n\n- Completed user authentication module\n- Fixed critical bugs in payment system\n- Updated documentation\n\nBest regards,\nAI Assistant"
	mockAnalysisResponse = `{"tone": "professional", "structure": "formal", "patterns": ["greeting", "bullet points", "closing"]}`
	mockDefaultPrefix    = "This is a mock response for testing. Your actual request was: "
)

// Mock 不访问网络，按提示词关键字返回固定内容
type Mock struct {
	model string
}

func NewMock(model string) *Mock {
	if model == "" {
		model = defaultModel
	}
	return &Mock{model: model}
}

func (m *Mock) Complete(_ context.Context, messages []Message, _ Options) (*Response, error) {
	prompt := ""
	if len(messages) > 0 {
		prompt = messages[len(messages)-1].Content
	}

	lower := strings.ToLower(prompt)
	var content string
	switch {
	case strings.Contains(lower, "email"):
		content = mockEmailResponse
	case strings.Contains(lower, "analyze"):
		content = mockAnalysisResponse
	default:
		content = mockDefaultPrefix + truncate(prompt, 100) + "..."
	}

	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))
	return &Response{
		Content: content,
		Model:   m.model,
		Usage: Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	}, nil
}
