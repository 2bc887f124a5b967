package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"sprintmail/pkg/config"
	"sprintmail/pkg/metrics"
	"sprintmail/pkg/otel"
)

const (
	defaultBaseURL = "https://api.deepseek.com/v1"
	defaultModel   = "deepseek-chat"
)

// DeepSeek OpenAI 兼容的 chat/completions 客户端
type DeepSeek struct {
	baseURL    string
	apiKey     string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewDeepSeek(cfg config.LLMConfig, logger *zap.Logger) *DeepSeek {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	d := &DeepSeek{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		timeout:    cfg.Timeout(),
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "deepseek",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return d
}

// NewDeepSeekWithHTTPClient 测试用，替换底层 http.Client
func NewDeepSeekWithHTTPClient(cfg config.LLMConfig, httpClient *http.Client, logger *zap.Logger) *DeepSeek {
	d := NewDeepSeek(cfg, logger)
	if httpClient != nil {
		d.httpClient = httpClient
	}
	return d
}

type chatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Temperature      float64   `json:"temperature"`
	MaxTokens        int       `json:"max_tokens"`
	TopP             float64   `json:"top_p"`
	FrequencyPenalty float64   `json:"frequency_penalty"`
	PresencePenalty  float64   `json:"presence_penalty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (d *DeepSeek) Complete(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, span := otel.LLMSpan(ctx, "chat", d.model)
	start := time.Now()

	out, err := d.breaker.Execute(func() (interface{}, error) {
		return d.do(ctx, messages, opts)
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordLLMCallLatency("chat", status, time.Since(start))
	otel.EndSpan(span, err)

	if err != nil {
		d.logger.Error("DeepSeek call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}

	resp := out.(*Response)
	metrics.AddTokenUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (d *DeepSeek) do(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	topP := opts.TopP
	if topP == 0 {
		topP = 1.0
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1000
	}

	body, err := json.Marshal(chatRequest{
		Model:       d.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
		TopP:        topP,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.apiKey)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("deepseek api error: status %d: %s", resp.StatusCode, truncate(string(raw), 300))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode deepseek response: %w", err)
	}

	content := ""
	if len(parsed.Choices) > 0 {
		content = parsed.Choices[0].Message.Content
	}
	return &Response{Content: content, Usage: parsed.Usage, Model: d.model}, nil
}

// truncate 按字节截断，不拆分多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
