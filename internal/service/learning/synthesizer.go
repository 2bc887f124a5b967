package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/placeholder"
	"sprintmail/pkg/metrics"
)

var synthesisOptions = llm.Options{Temperature: 0.2, MaxTokens: 1500}

const (
	sprintCommitmentSkeleton = "Hi {{recipients}},\n\n{{greeting_context}}\n\n**{{sprint_name}} Commitment and Goal**:\n\n**Sprint Goal**\n{{sprint_goal_description}}\n\n**Sprint Commitment**\n{{commitment_items}}\n\n{{flexibility_statement}}\n\n{{closing_statement}}"
	genericSkeleton          = "Hi {{recipients}},\n\n{{main_content}}\n\n{{closing}}"
)

// TemplateResult 合成的模板
type TemplateResult struct {
	Content   string
	Variables []string
	Name      string
	Style     model.StyleAttributes
	Fallback  bool
}

// TemplateSynthesizer 从训练邮件与分析结果生成带占位符的模板，失败时退回固定骨架
type TemplateSynthesizer struct {
	llm    llm.Completer
	logger *zap.Logger
}

func NewTemplateSynthesizer(c llm.Completer, logger *zap.Logger) *TemplateSynthesizer {
	return &TemplateSynthesizer{llm: c, logger: logger}
}

// Synthesize 从不返回错误
func (s *TemplateSynthesizer) Synthesize(ctx context.Context, email *model.TrainingEmail, patterns model.Patterns) TemplateResult {
	resp, err := s.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: buildTemplatePrompt(email, patterns)},
	}, synthesisOptions)
	if err != nil {
		s.logger.Warn("Template generation failed, using skeleton",
			zap.Int64("training_email_id", email.ID),
			zap.Error(err),
		)
		return fallbackTemplate(email.EmailType, patterns, " (Fallback)")
	}

	if t, ok := parseTemplate(resp.Content, email.EmailType, patterns); ok {
		return t
	}
	s.logger.Warn("Template response not parseable, using skeleton", zap.Int64("training_email_id", email.ID))
	return fallbackTemplate(email.EmailType, patterns, "")
}

// Skeleton 按邮件类型返回固定骨架
func Skeleton(emailType string) string {
	if emailType == model.EmailTypeSprintCommitment {
		return sprintCommitmentSkeleton
	}
	return genericSkeleton
}

func fallbackTemplate(emailType string, patterns model.Patterns, suffix string) TemplateResult {
	metrics.IncrementTemplateFallback(emailType)
	content := Skeleton(emailType)
	return TemplateResult{
		Content:   content,
		Variables: placeholder.Extract(content),
		Name:      ucfirst(emailType) + " Template" + suffix,
		Style:     styleFrom(patterns),
		Fallback:  true,
	}
}

type templateResponse struct {
	TemplateContent string          `json:"template_content"`
	Variables       json.RawMessage `json:"variables"`
	TemplateName    string          `json:"template_name"`
	StyleAttributes *struct {
		Tone      string `json:"tone"`
		Structure string `json:"structure"`
	} `json:"style_attributes"`
}

func parseTemplate(text, emailType string, patterns model.Patterns) (TemplateResult, bool) {
	span, ok := jsonSpan(text)
	if !ok {
		return TemplateResult{}, false
	}
	var r templateResponse
	if err := json.Unmarshal([]byte(span), &r); err != nil {
		return TemplateResult{}, false
	}
	if strings.TrimSpace(r.TemplateContent) == "" {
		return TemplateResult{}, false
	}

	out := TemplateResult{
		Content:   r.TemplateContent,
		Variables: parseVariables(r.Variables),
		Name:      r.TemplateName,
		Style:     styleFrom(patterns),
	}
	if len(out.Variables) == 0 {
		out.Variables = placeholder.Extract(r.TemplateContent)
	}
	if out.Name == "" {
		out.Name = ucfirst(emailType) + " Template"
	}
	if r.StyleAttributes != nil {
		if r.StyleAttributes.Tone != "" {
			out.Style.Tone = r.StyleAttributes.Tone
		}
		if r.StyleAttributes.Structure != "" {
			out.Style.Structure = r.StyleAttributes.Structure
		}
	}
	return out, true
}

// parseVariables 兼容字符串数组与 {"name": ...} 对象数组
func parseVariables(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err == nil {
		return names
	}
	var objs []model.TemplateVariable
	if err := json.Unmarshal(raw, &objs); err == nil {
		for _, o := range objs {
			if o.Name != "" {
				names = append(names, o.Name)
			}
		}
	}
	return names
}

func styleFrom(p model.Patterns) model.StyleAttributes {
	s := model.StyleAttributes{Tone: p.Tone, Structure: p.Structure}
	if s.Tone == "" {
		s.Tone = "professional"
	}
	if s.Structure == "" {
		s.Structure = "mixed"
	}
	return s
}

func ucfirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func buildTemplatePrompt(email *model.TrainingEmail, patterns model.Patterns) string {
	var b strings.Builder
	b.WriteString("Create a reusable email template based on this analyzed email pattern:\n\n")
	fmt.Fprintf(&b, "ORIGINAL EMAIL:\n%s\n\n", email.Content)
	fmt.Fprintf(&b, "EXTRACTED PATTERNS:\n%s\n\n", patterns.JSON())
	b.WriteString("Generate a template with the following structure:\n")
	b.WriteString("1. Replace specific values with {{variable_names}}\n")
	b.WriteString("2. Keep the structure and formatting intact\n")
	b.WriteString("3. Preserve the tone and style\n")
	fmt.Fprintf(&b, "4. Make it reusable for similar %s emails\n\n", email.EmailType)
	b.WriteString("Return JSON format:\n")
	b.WriteString(`{
  "template_content": "Hi {{recipients}},\n\nFollowing our Sprint Planning...",
  "variables": ["recipients", "sprint_name", "sprint_goal", "commitment_items"],
  "template_name": "Technical Sprint Commitment with Categories",
  "style_attributes": {"tone": "professional", "structure": "markdown_sections"}
}`)
	return b.String()
}
