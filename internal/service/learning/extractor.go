package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"sprintmail/internal/llm"
	"sprintmail/internal/model"
)

var analysisOptions = llm.Options{Temperature: 0.1, MaxTokens: 1000}

// PatternExtractor 调用补全服务分析训练邮件的结构与语气
type PatternExtractor struct {
	llm    llm.Completer
	logger *zap.Logger
}

func NewPatternExtractor(c llm.Completer, logger *zap.Logger) *PatternExtractor {
	return &PatternExtractor{llm: c, logger: logger}
}

// Extract 补全服务失败时返回 ErrAnalysisFailure；无法解析的回复得到 DefaultPatterns
func (x *PatternExtractor) Extract(ctx context.Context, email *model.TrainingEmail) (model.Patterns, error) {
	resp, err := x.llm.Complete(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: buildAnalysisPrompt(email)},
	}, analysisOptions)
	if err != nil {
		x.logger.Error("Pattern analysis failed",
			zap.Int64("training_email_id", email.ID),
			zap.Error(err),
		)
		return model.Patterns{}, fmt.Errorf("%w: %w", ErrAnalysisFailure, err)
	}
	return ParsePatterns(resp.Content), nil
}

// ParsePatterns 取第一个 { 到最后一个 } 之间的内容逐字段宽松解码；
// 缺少括号、解码失败或没有任何可用字段时返回 DefaultPatterns
func ParsePatterns(text string) model.Patterns {
	span, ok := jsonSpan(text)
	if !ok {
		return model.DefaultPatterns()
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(span), &fields); err != nil || len(fields) == 0 {
		return model.DefaultPatterns()
	}

	var (
		p    model.Patterns
		used bool
	)
	take := func(ok bool) { used = used || ok }

	p.Tone, ok = stringField(fields["tone"])
	take(ok)
	p.Structure, ok = stringField(fields["structure"])
	take(ok)
	p.KeySections, ok = stringList(fields["key_sections"])
	take(ok)
	p.FormattingFeatures, ok = stringList(fields["formatting_features"])
	take(ok)
	p.VariablesFound, ok = stringList(fields["variables_found"])
	take(ok)
	p.TechnicalTerms, ok = stringList(fields["technical_terms"])
	take(ok)
	p.StructureElements, ok = stringList(fields["structure_elements"])
	take(ok)
	p.WritingStyle, ok = objectField(fields["writing_style"], "summary")
	take(ok)
	p.ComplexityIndicators, ok = objectField(fields["complexity_indicators"], "summary")
	take(ok)
	p.TemplateVariables, ok = templateVariables(fields["template_variables"])
	take(ok)
	if c, ok := numberField(fields["confidence_score"]); ok {
		p.ConfidenceScore = &c
		used = true
	}

	if !used {
		return model.DefaultPatterns()
	}
	if p.TemplateVariables == nil {
		p.TemplateVariables = []model.TemplateVariable{}
	}
	return p
}

func stringField(raw json.RawMessage) (string, bool) {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// numberField 接受数字或数字字符串
func numberField(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if json.Unmarshal(raw, &f) == nil {
		return f, true
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

// stringList 接受字符串数组、单个字符串，或带 name 字段的对象数组
func stringList(raw json.RawMessage) ([]string, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	if s, ok := stringField(raw); ok {
		return []string{s}, true
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := stringField(item); ok {
			out = append(out, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(item, &obj) == nil && obj.Name != "" {
			out = append(out, obj.Name)
		}
	}
	return out, true
}

// objectField 对象原样保留；字符串包装为 {key: s}
func objectField(raw json.RawMessage, key string) (map[string]any, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var m map[string]any
	if json.Unmarshal(raw, &m) == nil && m != nil {
		return m, true
	}
	if s, ok := stringField(raw); ok {
		return map[string]any{key: s}, true
	}
	return nil, false
}

// templateVariables 兼容字符串数组与对象数组，对象中非字符串的 example 按 JSON 文本保存
func templateVariables(raw json.RawMessage) ([]model.TemplateVariable, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil, false
	}
	out := make([]model.TemplateVariable, 0, len(items))
	for _, item := range items {
		if name, ok := stringField(item); ok {
			out = append(out, model.TemplateVariable{Name: name})
			continue
		}
		var obj map[string]json.RawMessage
		if json.Unmarshal(item, &obj) != nil {
			continue
		}
		name, ok := stringField(obj["name"])
		if !ok {
			continue
		}
		v := model.TemplateVariable{Name: name, Location: looseString(obj["location"])}
		v.Example = looseString(obj["example"])
		out = append(out, v)
	}
	return out, true
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	if s, ok := stringField(raw); ok {
		return s
	}
	return string(raw)
}

// jsonSpan 返回最外层的 {...} 片段
func jsonSpan(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

func buildAnalysisPrompt(email *model.TrainingEmail) string {
	var b strings.Builder
	b.WriteString("Analyze this sprint email and extract key patterns for template generation. ")
	b.WriteString("This email may contain markdown formatting, table structures, and technical terminology.\n\n")
	fmt.Fprintf(&b, "EMAIL TYPE: %s\n", email.EmailType)
	fmt.Fprintf(&b, "SUBJECT: %s\n", email.Subject)
	fmt.Fprintf(&b, "CONTENT:\n%s\n\n", email.Content)
	b.WriteString("Please analyze and return a JSON response with these fields:\n\n")
	b.WriteString(analysisSchema)
	b.WriteString("\nPay special attention to:\n")
	b.WriteString("1. How commitment items are structured (table format, IDs, states, releases)\n")
	b.WriteString("2. Section headers and markdown formatting\n")
	b.WriteString("3. Multiple commitment categories\n")
	b.WriteString("4. Technical terminology and version numbers\n")
	b.WriteString("5. Flexibility and communication patterns\n\n")
	fmt.Fprintf(&b, "Focus on patterns that can be reused for generating similar %s emails.", email.EmailType)
	return b.String()
}

const analysisSchema = `{
  "tone": "professional|casual|formal",
  "structure": "bullet_list|table_format|mixed|markdown_sections",
  "key_sections": ["greeting", "sprint_goal", "sprint_commitment", "flexibility_clause", "closing"],
  "formatting_features": ["markdown_bold", "bullet_points", "table_structure", "numbered_lists"],
  "variables_found": ["sprint_name", "sprint_goal", "commitment_items", "team_categories"],
  "writing_style": {
    "sentence_length": "short|medium|long",
    "formality_level": "high|medium|low",
    "technical_level": "high|medium|low",
    "personal_touches": ["friendly_greeting", "flexibility_offer", "question_invitation"]
  },
  "template_variables": [
    {"name": "recipients", "example": "all", "location": "greeting"},
    {"name": "sprint_name", "example": "December Sprint 3", "location": "title_and_body"},
    {"name": "sprint_goal_description", "example": "focus on fixing VLE weekly defects", "location": "goal_section"},
    {"name": "commitment_categories", "example": "Development + Testing, Development Only", "location": "commitment_section"},
    {"name": "commitment_items", "example": "table_with_ids_titles_states", "location": "commitment_section"}
  ],
  "complexity_indicators": {
    "has_table_structure": true,
    "has_technical_ids": true,
    "has_multiple_categories": true,
    "has_detailed_items": true
  },
  "technical_terms": ["VLE", "API", "release"],
  "confidence_score": 0.85
}
`
