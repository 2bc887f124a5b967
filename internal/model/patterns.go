package model

import "encoding/json"

// TemplateVariable 分析阶段识别出的可替换变量示例
type TemplateVariable struct {
	Name     string `json:"name"`
	Example  string `json:"example,omitempty"`
	Location string `json:"location,omitempty"`
}

// Patterns 训练邮件的结构化分析结果
type Patterns struct {
	Tone                 string             `json:"tone,omitempty"`
	Structure            string             `json:"structure,omitempty"`
	KeySections          []string           `json:"key_sections,omitempty"`
	FormattingFeatures   []string           `json:"formatting_features,omitempty"`
	VariablesFound       []string           `json:"variables_found,omitempty"`
	WritingStyle         map[string]any     `json:"writing_style,omitempty"`
	TemplateVariables    []TemplateVariable `json:"template_variables"`
	ComplexityIndicators map[string]any     `json:"complexity_indicators,omitempty"`
	ConfidenceScore      *float64           `json:"confidence_score,omitempty"`
	TechnicalTerms       []string           `json:"technical_terms,omitempty"`
	StructureElements    []string           `json:"structure_elements,omitempty"`
}

// DefaultPatterns 无法解析分析结果时使用的固定模式
func DefaultPatterns() Patterns {
	confidence := 0.5
	return Patterns{
		Tone:              "professional",
		Structure:         "mixed",
		ConfidenceScore:   &confidence,
		KeySections:       []string{"greeting", "main_content", "closing"},
		TemplateVariables: []TemplateVariable{},
	}
}

// Confidence 未给出置信度时按 0.5 处理
func (p Patterns) Confidence() float64 {
	if p.ConfidenceScore == nil {
		return 0.5
	}
	return *p.ConfidenceScore
}

// JSON 序列化为缩进 JSON，用于拼接提示词
func (p Patterns) JSON() string {
	b, err := json.MarshalIndent(p, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
