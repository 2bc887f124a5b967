package generation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// styleHints 从模板学到的写作风格
type styleHints struct {
	Tone              string
	TechnicalTerms    []string
	StructureElements []string
}

func contextJSON(vars map[string]string) string {
	b, err := json.MarshalIndent(vars, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func variablePrompt(name, request string, vars map[string]string, hints styleHints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate content for the variable '%s' in a sprint email.\n\n", name)
	fmt.Fprintf(&b, "Context: %s\n\n", request)
	if len(vars) > 0 {
		fmt.Fprintf(&b, "Additional context: %s\n\n", contextJSON(vars))
	}
	b.WriteString("Writing style to match:\n")
	if hints.Tone != "" {
		fmt.Fprintf(&b, "- Tone: %s\n", hints.Tone)
	}
	if len(hints.TechnicalTerms) > 0 {
		fmt.Fprintf(&b, "- Technical terms used: %s\n", strings.Join(hints.TechnicalTerms, ", "))
	}
	fmt.Fprintf(&b, "\nGenerate appropriate content for '{{%s}}'. ", name)
	b.WriteString("Keep it concise and match the professional but friendly tone. ")
	b.WriteString("Respond with ONLY the content, no explanations.")
	return b.String()
}

func polishPrompt(draft, request, tone string) string {
	if tone == "" {
		tone = "professional but friendly"
	}
	var b strings.Builder
	b.WriteString("Polish this sprint email to make it more natural and professional.\n\n")
	fmt.Fprintf(&b, "Original request: %s\n\n", request)
	fmt.Fprintf(&b, "Email to polish:\n%s\n\n", draft)
	b.WriteString("Maintain the structure and content, just improve flow and naturalness.\n")
	fmt.Fprintf(&b, "Keep the tone: %s\n\n", tone)
	b.WriteString("Return only the polished email content:")
	return b.String()
}

func subjectPrompt(request string, vars map[string]string) string {
	var b strings.Builder
	b.WriteString("Generate a professional email subject line for this sprint email request:\n")
	fmt.Fprintf(&b, "%s\n\n", request)
	if sprint, ok := vars["sprint_name"]; ok {
		fmt.Fprintf(&b, "Sprint: %s\n", sprint)
	}
	b.WriteString("Make it clear, professional, and under 60 characters.\n")
	b.WriteString("Examples: 'Sprint 3 Commitment', 'Weekly Sprint Update', 'Sprint Retrospective Summary'\n\n")
	b.WriteString("Subject line:")
	return b.String()
}

func fromScratchPrompt(request string, vars map[string]string, hints *styleHints) string {
	var b strings.Builder
	b.WriteString("Generate a professional sprint email based on this request:\n")
	fmt.Fprintf(&b, "%s\n\n", request)
	if len(vars) > 0 {
		fmt.Fprintf(&b, "Context: %s\n\n", contextJSON(vars))
	}
	if hints != nil {
		b.WriteString("Writing style to match:\n")
		if hints.Tone != "" {
			fmt.Fprintf(&b, "- Tone: %s\n", hints.Tone)
		}
		if len(hints.StructureElements) > 0 {
			fmt.Fprintf(&b, "- Structure: %s\n", strings.Join(hints.StructureElements, ", "))
		}
	}
	b.WriteString("\nGenerate a complete, professional sprint email. ")
	b.WriteString("Use markdown formatting where appropriate. ")
	b.WriteString("Be specific and actionable.")
	return b.String()
}
