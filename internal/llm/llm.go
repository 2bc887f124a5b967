// Package llm 文本补全服务的抽象与 DeepSeek 实现
package llm

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"sprintmail/pkg/config"
)

// ErrProviderFailure 补全服务调用失败（非 2xx、网络错误、超时、熔断）
var ErrProviderFailure = errors.New("provider failure")

const (
	RoleSystem = "system"
	RoleUser   = "user"

	defaultSystemPrompt = "You are a helpful AI assistant."
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options 单次调用的采样参数
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	Content string
	Usage   Usage
	Model   string
}

// Completer 文本补全服务
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts Options) (*Response, error)
}

// GenerateText 以默认 system prompt 发送单条用户消息，返回文本内容
func GenerateText(ctx context.Context, c Completer, prompt string, opts Options) (string, error) {
	resp, err := c.Complete(ctx, []Message{
		{Role: RoleSystem, Content: defaultSystemPrompt},
		{Role: RoleUser, Content: prompt},
	}, opts)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// New 根据配置创建 Completer，mock_mode 下返回固定回复的 Mock
func New(cfg config.LLMConfig, logger *zap.Logger) (Completer, error) {
	if cfg.MockMode {
		logger.Warn("LLM running in mock mode")
		return NewMock(cfg.Model), nil
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key required when mock_mode is off")
	}
	return NewDeepSeek(cfg, logger), nil
}
