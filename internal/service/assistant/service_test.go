package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sprintmail/internal/llm"
	"sprintmail/internal/llm/llmtest"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/repository/memstore"
)

const sampleEmail = "Hi team, can we move the sprint review to Thursday afternoon?"

func newService(c llm.Completer) (*Service, *memstore.Store) {
	store := memstore.New()
	return NewService(store, c, zap.NewNop()), store
}

func TestDraftUsesToneTemperatureAndRecordsHistory(t *testing.T) {
	c := llmtest.NewScripted().On("Write an email", "Dear team, see you at the retro.")
	svc, _ := newService(c)

	res, err := svc.Draft(context.Background(), DraftInput{
		Description: "invite the team to the sprint retro",
		Tone:        "Casual",
		Context:     "retro is on Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dear team, see you at the retro.", res.Content)
	assert.NotZero(t, res.HistoryID)
	assert.Equal(t, true, res.Metadata["has_context"])

	calls := c.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, 0.9, calls[0].Options.Temperature)
	assert.Equal(t, 1000, calls[0].Options.MaxTokens)
	assert.Contains(t, calls[0].Messages[0].Content, "casual and conversational emails")
	assert.Equal(t, "Write an email based on this description: invite the team to the sprint retro\n\nAdditional context: retro is on Friday", calls[0].Prompt())

	history, err := svc.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.OperationDraft, history[0].Operation)
	assert.Equal(t, "casual", history[0].Tone)
	assert.Equal(t, "invite the team to the sprint retro", history[0].Input)
}

func TestDraftDefaultsToProfessional(t *testing.T) {
	c := llmtest.NewScripted()
	c.Default = "ok"
	svc, _ := newService(c)

	_, err := svc.Draft(context.Background(), DraftInput{Description: "status update for stakeholders"})
	require.NoError(t, err)
	assert.Equal(t, 0.7, c.Calls()[0].Options.Temperature)
	assert.Contains(t, c.Calls()[0].Messages[0].Content, "professional and formal emails")
}

func TestRespondPrompt(t *testing.T) {
	c := llmtest.NewScripted()
	c.Default = "Thursday works."
	svc, _ := newService(c)

	_, err := svc.Respond(context.Background(), ResponseInput{OriginalEmail: sampleEmail, Tone: "urgent"})
	require.NoError(t, err)
	_, err = svc.Respond(context.Background(), ResponseInput{OriginalEmail: sampleEmail, Instructions: "decline politely"})
	require.NoError(t, err)

	calls := c.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, 0.75, calls[0].Options.Temperature)
	assert.True(t, strings.HasSuffix(calls[0].Prompt(), "Generate an appropriate response to this email."))
	assert.True(t, strings.HasSuffix(calls[1].Prompt(), "Response instructions: decline politely"))
	assert.True(t, strings.HasPrefix(calls[1].Prompt(), "Original email:\n"+sampleEmail))
}

func TestAnalyzeAndSummarize(t *testing.T) {
	c := llmtest.NewScripted().
		On("Analyze this email", "Clarity: 8/10").
		On("Summarize this email thread", "- Review moved to Thursday")
	svc, _ := newService(c)

	res, err := svc.Analyze(context.Background(), sampleEmail)
	require.NoError(t, err)
	assert.Equal(t, "Clarity: 8/10", res.Content)

	thread := sampleEmail + "\n\nRe: Thursday is fine, 3pm?"
	res, err = svc.Summarize(context.Background(), thread)
	require.NoError(t, err)
	assert.Equal(t, "- Review moved to Thursday", res.Content)

	history, err := svc.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.OperationSummarize, history[0].Operation)
	assert.Equal(t, model.OperationAnalyze, history[1].Operation)
}

func TestValidation(t *testing.T) {
	svc, _ := newService(llmtest.NewScripted())
	ctx := context.Background()

	cases := []struct {
		name string
		run  func() error
	}{
		{"short description", func() error { _, err := svc.Draft(ctx, DraftInput{Description: "too short"}); return err }},
		{"unknown tone", func() error {
			_, err := svc.Draft(ctx, DraftInput{Description: "a long enough description", Tone: "sarcastic"})
			return err
		}},
		{"long context", func() error {
			_, err := svc.Draft(ctx, DraftInput{Description: "a long enough description", Context: strings.Repeat("c", 501)})
			return err
		}},
		{"short original email", func() error { _, err := svc.Respond(ctx, ResponseInput{OriginalEmail: "hi"}); return err }},
		{"short email content", func() error { _, err := svc.Analyze(ctx, "  short  "); return err }},
		{"short thread", func() error { _, err := svc.Summarize(ctx, sampleEmail); return err }},
		{"unknown template type", func() error { _, err := svc.Template(ctx, TemplateInput{TemplateType: "memo"}); return err }},
		{"empty text", func() error { _, err := svc.AnalyzeText(ctx, " ", "tone"); return err }},
		{"rating out of range", func() error { _, err := svc.Rate(ctx, 1, 6, ""); return err }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.run(), ErrInvalidInput)
		})
	}
}

func TestValidationCountsCharacters(t *testing.T) {
	c := llmtest.NewScripted()
	svc, _ := newService(c)

	// 10 个汉字占 30 字节，按字符计恰好满足下限
	_, err := svc.Draft(context.Background(), DraftInput{Description: strings.Repeat("冲", 10)})
	require.NoError(t, err)
	_, err = svc.Draft(context.Background(), DraftInput{Description: strings.Repeat("冲", 1001)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestProviderFailureSkipsHistory(t *testing.T) {
	c := llmtest.NewScripted().Fail("Write an email")
	svc, _ := newService(c)

	_, err := svc.Draft(context.Background(), DraftInput{Description: "invite the team to the sprint retro"})
	require.ErrorIs(t, err, llm.ErrProviderFailure)

	history, err := svc.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTemplateGeneratesThenReuses(t *testing.T) {
	c := llmtest.NewScripted().On("Create a thank you email template.",
		"Dear [Recipient Name],\n\nThank you for [Reason].\n\nBest,\n[Your Name]\n[Recipient Name]")
	svc, store := newService(c)
	ctx := context.Background()

	first, err := svc.Template(ctx, TemplateInput{TemplateType: "thank_you"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Recipient Name", "Reason", "Your Name"}, first.Metadata["placeholders"])
	assert.Nil(t, first.Metadata["from_cache"])

	saved := store.AssistantTemplates()
	require.Len(t, saved, 1)
	assert.Equal(t, "thank you email", saved[0].Name)
	assert.Equal(t, "thank_you", saved[0].TemplateType)

	second, err := svc.Template(ctx, TemplateInput{TemplateType: "thank_you"})
	require.NoError(t, err)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, true, second.Metadata["from_cache"])
	assert.Equal(t, saved[0].ID, second.Metadata["template_id"])
	assert.Len(t, c.Calls(), 1)
	assert.Equal(t, 1, store.AssistantTemplates()[0].UsageCount)

	// 复用不写历史
	history, err := svc.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestTemplateWithContextAlwaysGenerates(t *testing.T) {
	c := llmtest.NewScripted()
	c.Default = "Hello [Name]"
	svc, store := newService(c)
	ctx := context.Background()

	_, err := svc.Template(ctx, TemplateInput{TemplateType: "proposal"})
	require.NoError(t, err)

	brief := strings.Repeat("migrate the billing service to the new cluster ", 3)
	res, err := svc.Template(ctx, TemplateInput{TemplateType: "proposal", Context: brief})
	require.NoError(t, err)
	assert.Nil(t, res.Metadata["from_cache"])
	require.Len(t, c.Calls(), 2)
	assert.Contains(t, c.Calls()[1].Prompt(), "\nContext: "+brief)

	saved := store.AssistantTemplates()
	require.Len(t, saved, 2)
	assert.Equal(t, "business proposal email - "+brief[:50], saved[1].Name)
	assert.Equal(t, brief, saved[1].Context)
}

func TestAnalyzeText(t *testing.T) {
	c := llmtest.NewScripted().
		On("Analyze the tone", "Here you go: {\"formality\": \"high\", \"score\": 0.8} done").
		On("Analyze the structure", "Opening is a greeting.")
	svc, _ := newService(c)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	ctx := context.Background()

	out, err := svc.AnalyzeText(ctx, sampleEmail, "tone")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"formality": "high", "score": 0.8}, out)

	out, err = svc.AnalyzeText(ctx, sampleEmail, "structure")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"analysis":  "Opening is a greeting.",
		"type":      "structure",
		"timestamp": "2026-01-02T03:04:05Z",
	}, out)

	_, err = svc.AnalyzeText(ctx, sampleEmail, "")
	require.NoError(t, err)

	calls := c.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, textAnalysisSystemPrompt, calls[0].Messages[0].Content)
	assert.Equal(t, 0.3, calls[0].Options.Temperature)
	assert.Equal(t, 500, calls[0].Options.MaxTokens)
	assert.True(t, strings.HasPrefix(calls[2].Prompt(), "Analyze this text comprehensively"))
	assert.True(t, strings.HasSuffix(calls[2].Prompt(), "\n\nText:\n"+sampleEmail))
}

func TestRate(t *testing.T) {
	c := llmtest.NewScripted()
	c.Default = "ok"
	svc, _ := newService(c)
	ctx := context.Background()

	res, err := svc.Analyze(ctx, sampleEmail)
	require.NoError(t, err)

	rec, err := svc.Rate(ctx, res.HistoryID, 4, "useful")
	require.NoError(t, err)
	require.NotNil(t, rec.Rating)
	assert.Equal(t, 4, *rec.Rating)
	assert.Equal(t, "useful", rec.Feedback)

	_, err = svc.Rate(ctx, 999, 3, "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestFailureReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: status 503", llm.ErrProviderFailure), "text completion provider unavailable"},
		{context.DeadlineExceeded, "request cancelled or timed out"},
		{errors.New("dial tcp: connection refused"), "storage failure"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FailureReason(tc.err))
	}
}
