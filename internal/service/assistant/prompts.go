package assistant

import (
	"fmt"
	"strings"

	"sprintmail/internal/model"
)

type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneCasual       Tone = "casual"
	ToneFormal       Tone = "formal"
	ToneConcise      Tone = "concise"
	ToneUrgent       Tone = "urgent"
)

type toneProfile struct {
	temperature float64
	description string
}

var tones = map[Tone]toneProfile{
	ToneProfessional: {0.7, "professional and formal"},
	ToneFriendly:     {0.8, "friendly and approachable while maintaining professionalism"},
	ToneCasual:       {0.9, "casual and conversational"},
	ToneFormal:       {0.5, "highly formal and corporate"},
	ToneConcise:      {0.6, "brief and to-the-point"},
	ToneUrgent:       {0.75, "urgent and direct with clear action items"},
}

// ParseTone 空串取 professional
func ParseTone(s string) (Tone, error) {
	if s == "" {
		return ToneProfessional, nil
	}
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tones[t]; !ok {
		return "", fmt.Errorf("%w: unknown tone %q", ErrInvalidInput, s)
	}
	return t, nil
}

func (t Tone) Temperature() float64 { return tones[t].temperature }

func (t Tone) Description() string { return tones[t].description }

type TemplateType string

var templateTypes = map[TemplateType]string{
	"meeting_request": "professional meeting request",
	"follow_up":       "follow-up email after a meeting or conversation",
	"introduction":    "professional self-introduction or introduction of others",
	"thank_you":       "thank you email",
	"apology":         "professional apology email",
	"feedback":        "constructive feedback email",
	"proposal":        "business proposal email",
}

func ParseTemplateType(s string) (TemplateType, error) {
	t := TemplateType(strings.TrimSpace(s))
	if _, ok := templateTypes[t]; !ok {
		return "", fmt.Errorf("%w: unknown template_type %q", ErrInvalidInput, s)
	}
	return t, nil
}

func (t TemplateType) Description() string { return templateTypes[t] }

func systemPrompt(operation string, tone Tone) string {
	switch operation {
	case model.OperationDraft:
		return fmt.Sprintf("You are a professional email writing assistant. Write %s emails that are clear, "+
			"well-structured, and appropriate for business communication. Ensure proper formatting with "+
			"appropriate greetings and closings. Keep the language natural and engaging.", tone.Description())
	case model.OperationResponse:
		return fmt.Sprintf("You are an email response assistant. Generate %s replies that address all points "+
			"in the original email while maintaining appropriate context. Ensure the response is relevant, "+
			"complete, and maintains the conversation flow naturally.", tone.Description())
	case model.OperationAnalyze:
		return "You are an email analyzer. Analyze emails for tone, clarity, professionalism, and effectiveness. " +
			"Provide specific, actionable feedback. Be constructive and helpful in your analysis. " +
			"Format your response with clear sections and scores where appropriate."
	case model.OperationSummarize:
		return "You are an email summarizer. Extract and present key points from email threads concisely. " +
			"Identify main topics, decisions made, action items, and important dates. " +
			"Structure the summary in a clear, scannable format."
	case model.OperationTemplate:
		return "You are an email template generator. Create reusable email templates with placeholders " +
			"[like this] for customizable parts. Ensure templates are professional, complete, and easy to " +
			"customize. Include all necessary sections for the template type."
	}
	return "You are a helpful email assistant."
}

func draftPrompt(description, context string) string {
	p := "Write an email based on this description: " + description
	if context != "" {
		p += "\n\nAdditional context: " + context
	}
	return p
}

func responsePrompt(original, instructions string) string {
	p := "Original email:\n" + original + "\n\n"
	if instructions != "" {
		return p + "Response instructions: " + instructions
	}
	return p + "Generate an appropriate response to this email."
}

func analyzePrompt(content string) string {
	return "Analyze this email and provide feedback:\n\n" + content + "\n\n" +
		"Include:\n" +
		"1. Tone analysis\n" +
		"2. Clarity score (1-10)\n" +
		"3. Professionalism score (1-10)\n" +
		"4. Specific suggestions for improvement\n" +
		"5. What works well"
}

func summaryPrompt(thread string) string {
	return "Summarize this email thread, highlighting key points, decisions, and action items:\n\n" + thread + "\n\n" +
		"Format the summary with:\n" +
		"- Main topics discussed\n" +
		"- Key decisions made\n" +
		"- Action items and owners\n" +
		"- Important dates/deadlines\n" +
		"- Any unresolved issues"
}

func templatePrompt(t TemplateType, context string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a %s template.", t.Description())
	if context != "" {
		b.WriteString("\nContext: " + context)
	}
	b.WriteString("\nInclude placeholders in [brackets] for parts that should be customized.")
	b.WriteString("\nEnsure the template is complete and professional.")
	return b.String()
}

const textAnalysisSystemPrompt = "You are an expert text analyst. Provide detailed JSON-formatted analysis."

// 文本分析类型，未知类型按 general 处理
var textAnalysisPrompts = map[string]string{
	"tone":      "Analyze the tone and writing style of this text. Identify: formality level, emotional tone, professional indicators.",
	"structure": "Analyze the structure of this text. Identify: opening style, main sections, closing style, formatting patterns.",
	"patterns":  "Extract recurring patterns, phrases, and technical terminology from this text.",
	"general":   "Analyze this text comprehensively including tone, structure, and key patterns.",
}

func textAnalysisPrompt(kind, text string) string {
	p, ok := textAnalysisPrompts[kind]
	if !ok {
		p = textAnalysisPrompts["general"]
	}
	return p + "\n\nText:\n" + text
}
