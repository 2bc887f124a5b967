package learning

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/llm/llmtest"
	"sprintmail/internal/model"
	"sprintmail/internal/placeholder"
	"sprintmail/internal/repository"
	"sprintmail/internal/repository/memstore"
)

const (
	analysisMarker = "Analyze this sprint email"
	templateMarker = "Create a reusable email template"

	sampleContent = "Hi all,\n\nFollowing our Sprint Planning, here is the Sprint 23 commitment.\n\n**Sprint Goal**\nFix VLE defects before the release."
)

func TestParsePatterns(t *testing.T) {
	def := model.DefaultPatterns()

	for name, in := range map[string]string{
		"no braces":    "I could not analyze this email.",
		"malformed":    "Here you go: {tone: professional,,}",
		"empty object": "{}",
		"no usable fields": `{"tone": 3, "notes": "n/a"}`,
	} {
		t.Run(name, func(t *testing.T) {
			got := ParsePatterns(in)
			assert.Equal(t, def, got)
			assert.Equal(t, "professional", got.Tone)
			assert.Equal(t, "mixed", got.Structure)
			assert.InDelta(t, 0.5, got.Confidence(), 1e-12)
			assert.Equal(t, []string{"greeting", "main_content", "closing"}, got.KeySections)
			assert.NotNil(t, got.TemplateVariables)
			assert.Empty(t, got.TemplateVariables)
		})
	}
}

func TestParsePatternsLenientShapes(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		check func(t *testing.T, got model.Patterns)
	}{
		{
			name: "string template variables",
			in:   `{"tone":"casual","structure":"bullet_list","confidence_score":0.9,"template_variables":["sprint_name","goal"]}`,
			check: func(t *testing.T, got model.Patterns) {
				assert.Equal(t, "casual", got.Tone)
				assert.Equal(t, "bullet_list", got.Structure)
				assert.InDelta(t, 0.9, got.Confidence(), 1e-12)
				assert.Equal(t, []model.TemplateVariable{{Name: "sprint_name"}, {Name: "goal"}}, got.TemplateVariables)
			},
		},
		{
			name: "writing style as string",
			in:   `{"tone":"formal","writing_style":"concise"}`,
			check: func(t *testing.T, got model.Patterns) {
				assert.Equal(t, "formal", got.Tone)
				assert.Equal(t, map[string]any{"summary": "concise"}, got.WritingStyle)
				assert.NotNil(t, got.TemplateVariables)
			},
		},
		{
			name: "confidence as string",
			in:   `{"structure":"table_format","confidence_score":"0.8"}`,
			check: func(t *testing.T, got model.Patterns) {
				assert.Equal(t, "table_format", got.Structure)
				assert.InDelta(t, 0.8, got.Confidence(), 1e-12)
			},
		},
		{
			name: "mixed variable shapes and bad field",
			in:   `{"tone":"casual","key_sections":"greeting","confidence_score":"high","template_variables":["a",{"name":"b","example":3},{"example":"no name"},7]}`,
			check: func(t *testing.T, got model.Patterns) {
				assert.Equal(t, "casual", got.Tone)
				assert.Equal(t, []string{"greeting"}, got.KeySections)
				assert.Nil(t, got.ConfidenceScore)
				assert.InDelta(t, 0.5, got.Confidence(), 1e-12)
				assert.Equal(t, []model.TemplateVariable{{Name: "a"}, {Name: "b", Example: "3"}}, got.TemplateVariables)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, ParsePatterns(tc.in))
		})
	}
}

func TestParsePatternsOutermostSpan(t *testing.T) {
	got := ParsePatterns("Sure! Analysis:\n```json\n" + `{"tone": "casual", "structure": "bullet_list",
		"writing_style": {"formality_level": "low"},
		"template_variables": [{"name": "sprint_name", "example": "Sprint 23"}],
		"technical_terms": ["VLE", "API"],
		"confidence_score": 0.9}` + "\n```\nHope this helps.")

	assert.Equal(t, "casual", got.Tone)
	assert.Equal(t, "bullet_list", got.Structure)
	assert.Equal(t, "low", got.WritingStyle["formality_level"])
	require.Len(t, got.TemplateVariables, 1)
	assert.Equal(t, "sprint_name", got.TemplateVariables[0].Name)
	assert.Equal(t, []string{"VLE", "API"}, got.TechnicalTerms)
	assert.InDelta(t, 0.9, got.Confidence(), 1e-12)
}

func TestExtractProviderFailure(t *testing.T) {
	c := llmtest.NewScripted().Fail(analysisMarker)
	x := NewPatternExtractor(c, zap.NewNop())

	_, err := x.Extract(context.Background(), &model.TrainingEmail{ID: 1, EmailType: "sprint_update", Content: sampleContent})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisFailure)
	assert.ErrorIs(t, err, llm.ErrProviderFailure)
}

func TestExtractOptions(t *testing.T) {
	c := llmtest.NewScripted().On(analysisMarker, `{"tone":"formal"}`)
	x := NewPatternExtractor(c, zap.NewNop())

	p, err := x.Extract(context.Background(), &model.TrainingEmail{ID: 1, EmailType: "sprint_update", Subject: "Update", Content: sampleContent})
	require.NoError(t, err)
	assert.Equal(t, "formal", p.Tone)

	calls := c.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Messages, 1)
	assert.Equal(t, llm.RoleUser, calls[0].Messages[0].Role)
	assert.InDelta(t, 0.1, calls[0].Options.Temperature, 1e-12)
	assert.Equal(t, 1000, calls[0].Options.MaxTokens)
	assert.Contains(t, calls[0].Prompt(), "EMAIL TYPE: sprint_update")
	assert.Contains(t, calls[0].Prompt(), "SUBJECT: Update")
}

func TestSynthesizeFallbackOnProviderFailure(t *testing.T) {
	c := llmtest.NewScripted().Fail(templateMarker)
	s := NewTemplateSynthesizer(c, zap.NewNop())
	patterns := model.Patterns{Tone: "casual"}

	got := s.Synthesize(context.Background(), &model.TrainingEmail{ID: 1, EmailType: "sprint_commitment", Content: sampleContent}, patterns)

	assert.True(t, got.Fallback)
	assert.Equal(t, sprintCommitmentSkeleton, got.Content)
	assert.Equal(t, placeholder.Extract(sprintCommitmentSkeleton), got.Variables)
	assert.Equal(t, []string{
		"recipients", "greeting_context", "sprint_name", "sprint_goal_description",
		"commitment_items", "flexibility_statement", "closing_statement",
	}, got.Variables)
	assert.Equal(t, "Sprint_commitment Template (Fallback)", got.Name)
	assert.Equal(t, model.StyleAttributes{Tone: "casual", Structure: "mixed"}, got.Style)

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.2, calls[0].Options.Temperature, 1e-12)
	assert.Equal(t, 1500, calls[0].Options.MaxTokens)
}

func TestSynthesizeFallbackOnUnparseable(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":         "Here is a template: Hi team",
		"empty content": `{"template_content": "", "variables": []}`,
	} {
		t.Run(name, func(t *testing.T) {
			c := llmtest.NewScripted().On(templateMarker, reply)
			got := NewTemplateSynthesizer(c, zap.NewNop()).
				Synthesize(context.Background(), &model.TrainingEmail{EmailType: "sprint_update"}, model.DefaultPatterns())

			assert.True(t, got.Fallback)
			assert.Equal(t, genericSkeleton, got.Content)
			assert.Equal(t, []string{"recipients", "main_content", "closing"}, got.Variables)
			assert.Equal(t, "Sprint_update Template", got.Name)
			assert.NotEmpty(t, got.Content)
		})
	}
}

func TestSynthesizeParsesResponse(t *testing.T) {
	c := llmtest.NewScripted().On(templateMarker, `Template:
{"template_content": "Hi {{recipients}},\n\n{{update_items}}",
 "variables": [{"name": "recipients"}, {"name": "update_items"}],
 "template_name": "Weekly Update",
 "style_attributes": {"tone": "friendly"}}`)

	got := NewTemplateSynthesizer(c, zap.NewNop()).
		Synthesize(context.Background(), &model.TrainingEmail{EmailType: "sprint_update"}, model.Patterns{Structure: "bullet_list"})

	assert.False(t, got.Fallback)
	assert.Equal(t, "Hi {{recipients}},\n\n{{update_items}}", got.Content)
	assert.Equal(t, []string{"recipients", "update_items"}, got.Variables)
	assert.Equal(t, "Weekly Update", got.Name)
	assert.Equal(t, model.StyleAttributes{Tone: "friendly", Structure: "bullet_list"}, got.Style)
}

func TestSynthesizeMissingVariablesExtractedFromContent(t *testing.T) {
	c := llmtest.NewScripted().On(templateMarker, `{"template_content": "Hi {{recipients}}, {{body}} {{recipients}}"}`)

	got := NewTemplateSynthesizer(c, zap.NewNop()).
		Synthesize(context.Background(), &model.TrainingEmail{EmailType: "planning"}, model.Patterns{})

	assert.Equal(t, []string{"recipients", "body"}, got.Variables)
	assert.Equal(t, "Planning Template", got.Name)
}

func newService(t *testing.T, c llm.Completer) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewService(store, c, embedding.Embed, zap.NewNop()), store
}

func upload(t *testing.T, svc *Service, emailType, content string) *model.TrainingEmail {
	t.Helper()
	e, err := svc.Upload(context.Background(), UploadInput{Subject: "Sprint 23", Content: content, EmailType: emailType})
	require.NoError(t, err)
	return e
}

func TestAnalyze(t *testing.T) {
	c := llmtest.NewScripted().
		On(analysisMarker, `{"tone": "professional", "structure": "markdown_sections", "confidence_score": 0.85}`).
		On(templateMarker, `{"template_content": "Hi {{recipients}},\n\n{{sprint_goal}}", "variables": ["recipients", "sprint_goal"], "template_name": "Commitment"}`)
	svc, store := newService(t, c)
	email := upload(t, svc, "sprint_commitment", sampleContent)

	res, err := svc.Analyze(context.Background(), email.ID)
	require.NoError(t, err)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, embedding.Dimension, res.EmbeddingDimension)
	assert.False(t, res.TemplateFallback)

	stored, err := store.GetTrainingEmail(context.Background(), email.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsProcessed)
	require.NotNil(t, stored.Patterns)
	assert.Equal(t, "markdown_sections", stored.Patterns.Structure)

	vectors, _ := store.ListPatternVectors(context.Background())
	require.Len(t, vectors, 1)
	assert.Equal(t, embedding.Embed(sampleContent), vectors[0].Embedding)
	assert.Equal(t, ContentHash(sampleContent), vectors[0].ContentHash)
	assert.InDelta(t, 0.85, vectors[0].ConfidenceScore, 1e-12)

	tmpl, ok := store.Template(res.TemplateID)
	require.True(t, ok)
	assert.Equal(t, "sprint_commitment", tmpl.PatternType)
	assert.Equal(t, []string{"recipients", "sprint_goal"}, tmpl.Variables)
	assert.Equal(t, 0, tmpl.UsageCount)

	events := store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, mqcontracts.TrainingEmailUploaded, events[0].RoutingKey)
	assert.Equal(t, mqcontracts.TrainingEmailAnalyzed, events[1].RoutingKey)
}

func TestAnalyzeAlreadyProcessed(t *testing.T) {
	svc, _ := newService(t, llmtest.NewScripted())
	email := upload(t, svc, "sprint_update", sampleContent)

	_, err := svc.Analyze(context.Background(), email.ID)
	require.NoError(t, err)

	_, err = svc.Analyze(context.Background(), email.ID)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
}

func TestAnalyzeNotFound(t *testing.T) {
	svc, _ := newService(t, llmtest.NewScripted())
	_, err := svc.Analyze(context.Background(), 404)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAnalyzeExtractionFailureLeavesUnprocessed(t *testing.T) {
	c := llmtest.NewScripted().Fail(analysisMarker)
	svc, store := newService(t, c)
	email := upload(t, svc, "sprint_update", sampleContent)

	_, err := svc.Analyze(context.Background(), email.ID)
	assert.ErrorIs(t, err, ErrAnalysisFailure)

	stored, _ := store.GetTrainingEmail(context.Background(), email.ID)
	assert.False(t, stored.IsProcessed)
	assert.Empty(t, c.CallsMatching(templateMarker))
}

func TestAnalyzeStorageFailure(t *testing.T) {
	svc, store := newService(t, llmtest.NewScripted())
	email := upload(t, svc, "sprint_update", sampleContent)
	store.FailSaveAnalysis = errors.New("connection reset")

	_, err := svc.Analyze(context.Background(), email.ID)
	require.Error(t, err)

	stored, _ := store.GetTrainingEmail(context.Background(), email.ID)
	assert.False(t, stored.IsProcessed)
	vectors, _ := store.ListPatternVectors(context.Background())
	assert.Empty(t, vectors)
}

func TestAnalyzeAll(t *testing.T) {
	c := llmtest.NewScripted().Fail("Retrospective notes")
	svc, _ := newService(t, c)
	first := upload(t, svc, "sprint_update", sampleContent)
	second := upload(t, svc, "retrospective", "Retrospective notes: "+strings.Repeat("went well, ", 5))

	outcomes, err := svc.AnalyzeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, first.ID, outcomes[0].EmailID)
	assert.Equal(t, "success", outcomes[0].Status)
	assert.NotNil(t, outcomes[0].Result)
	assert.Equal(t, second.ID, outcomes[1].EmailID)
	assert.Equal(t, "failed", outcomes[1].Status)
	assert.Equal(t, "analysis failed: text completion provider unavailable", outcomes[1].Error)

	again, err := svc.AnalyzeAll(context.Background())
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, second.ID, again[0].EmailID)
}

func TestUpload(t *testing.T) {
	svc, store := newService(t, llmtest.NewScripted())

	e := upload(t, svc, "sprint_commitment", sampleContent)
	assert.Equal(t, ContentHash(sampleContent), e.ContentHash)
	assert.Len(t, e.ContentHash, 32)
	assert.Equal(t, "User", e.SenderName)
	assert.True(t, e.IsApproved)
	assert.False(t, e.IsProcessed)

	_, err := svc.Upload(context.Background(), UploadInput{Subject: "Again", Content: sampleContent, EmailType: "sprint_update"})
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	pending, _ := store.ListPendingTrainingEmails(context.Background())
	assert.Len(t, pending, 1)
}

func TestUploadValidation(t *testing.T) {
	svc, _ := newService(t, llmtest.NewScripted())
	cases := map[string]UploadInput{
		"short content": {Subject: "s", Content: "too short", EmailType: "sprint_update"},
		"bad type":      {Subject: "s", Content: sampleContent, EmailType: "newsletter"},
		"no subject":    {Content: sampleContent, EmailType: "sprint_update"},
		"long subject":  {Subject: strings.Repeat("x", 201), Content: sampleContent, EmailType: "sprint_update"},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Upload(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
