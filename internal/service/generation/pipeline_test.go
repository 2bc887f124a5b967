package generation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/llm/llmtest"
	"sprintmail/internal/model"
	"sprintmail/internal/repository/memstore"
	"sprintmail/internal/similarity"
)

const (
	request = "weekly sprint update for backend team"

	variableMarker    = "Generate content for the variable"
	polishMarker      = "Polish this sprint email"
	subjectMarker     = "Generate a professional email subject line"
	fromScratchMarker = "Generate a professional sprint email based on this request"
)

func normalize(v []float64) []float64 {
	var n float64
	for _, x := range v {
		n += x * x
	}
	n = math.Sqrt(n)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// vectorWithCosine 构造与 q 余弦相似度恰为 c 的单位向量
func vectorWithCosine(q []float64, c float64) []float64 {
	qn := normalize(q)
	e := make([]float64, len(q))
	for i := range e {
		e[i] = math.Cos(float64(i) * 0.37)
	}
	var d float64
	for i := range e {
		d += e[i] * qn[i]
	}
	for i := range e {
		e[i] -= d * qn[i]
	}
	en := normalize(e)

	s := math.Sqrt(1 - c*c)
	v := make([]float64, len(q))
	for i := range v {
		v[i] = c*qn[i] + s*en[i]
	}
	return v
}

func seedTemplate(store *memstore.Store, patternType, content string, cos float64) model.EmailTemplate {
	t := store.AddTemplate(model.EmailTemplate{
		PatternType: patternType,
		Name:        patternType + " template",
		Content:     content,
		Style:       model.StyleAttributes{Tone: "professional", Structure: "bullet_list"},
	})
	store.AddPatternVector(model.PatternVector{
		PatternType: patternType,
		ContentHash: patternType,
		Embedding:   vectorWithCosine(embedding.Embed(request), cos),
	})
	return t
}

func scripted() *llmtest.Scripted {
	return llmtest.NewScripted().
		On(variableMarker+" 'recipients'", "Backend Team").
		On(variableMarker, "  Generated text\n").
		On(polishMarker, "Polished email").
		On(subjectMarker, "  Weekly Backend Update  \n").
		On(fromScratchMarker, "Scratch email body")
}

func TestVectorWithCosine(t *testing.T) {
	q := embedding.Embed(request)
	assert.InDelta(t, 0.85, similarity.Cosine(q, vectorWithCosine(q, 0.85)), 1e-9)
}

func TestGenerateMatchedTemplate(t *testing.T) {
	store := memstore.New()
	tmpl := seedTemplate(store, "sprint_update", "Hi {{recipients}},\n\n{{update_items}}\n\n{{closing}}", 0.85)
	c := scripted()
	p := NewPipeline(store, c, embedding.Embed, zap.NewNop())

	res := p.Generate(context.Background(), request, map[string]string{})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "sprint_update", res.Email.TemplateUsed)
	assert.InDelta(t, 0.85, res.Email.Confidence, 1e-9)
	assert.Equal(t, "Polished email", res.Email.Content)
	assert.Equal(t, "Weekly Backend Update", res.Email.Subject)

	info := res.TemplateInfo
	assert.Equal(t, "sprint_update", info.MatchedTemplate)
	assert.Equal(t, []string{"recipients", "update_items", "closing"}, info.VariablesFilled)
	assert.Equal(t, []string{"recipients", "update_items", "closing"}, info.Generated)
	assert.Empty(t, info.FromContext)
	assert.True(t, info.Polished)
	assert.False(t, info.GeneratedFromScratch)

	polish := c.CallsMatching(polishMarker)
	require.Len(t, polish, 1)
	assert.Contains(t, polish[0].Prompt(), "Hi Backend Team,\n\nGenerated text\n\nGenerated text")
	assert.InDelta(t, 0.3, polish[0].Options.Temperature, 1e-12)
	assert.Equal(t, 800, polish[0].Options.MaxTokens)

	vars := c.CallsMatching(variableMarker)
	require.Len(t, vars, 3)
	assert.InDelta(t, 0.7, vars[0].Options.Temperature, 1e-12)
	assert.Equal(t, 150, vars[0].Options.MaxTokens)
	assert.Contains(t, vars[0].Prompt(), "- Tone: professional")

	subject := c.CallsMatching(subjectMarker)
	require.Len(t, subject, 1)
	assert.Equal(t, 50, subject[0].Options.MaxTokens)

	updated, ok := store.Template(tmpl.ID)
	require.True(t, ok)
	assert.Equal(t, 1, updated.UsageCount)

	history, total, err := store.ListHistory(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, res.HistoryID, history[0].ID)
	assert.Equal(t, "sprint_update", history[0].TemplateUsed)
	assert.Equal(t, "Weekly Backend Update", history[0].Subject)
	require.NotNil(t, history[0].TemplateID)
	assert.Equal(t, tmpl.ID, *history[0].TemplateID)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, mqcontracts.SprintEmailGenerated, events[0].RoutingKey)
	payload := events[0].Payload.(mqcontracts.SprintEmailGeneratedPayload)
	assert.NotEmpty(t, payload.TraceID)
}

func TestGenerateEmptyCorpusFromScratch(t *testing.T) {
	store := memstore.New()
	c := scripted()
	p := NewPipeline(store, c, embedding.Embed, zap.NewNop())

	res := p.Generate(context.Background(), "plan the retro for next friday", nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, model.TemplateUsedFromScratch, res.Email.TemplateUsed)
	assert.Equal(t, 0.5, res.Email.Confidence)
	assert.Equal(t, "Scratch email body", res.Email.Content)
	assert.True(t, res.TemplateInfo.GeneratedFromScratch)
	assert.Equal(t, "none", res.TemplateInfo.MatchedTemplate)

	calls := c.CallsMatching(fromScratchMarker)
	require.Len(t, calls, 1)
	assert.InDelta(t, 0.7, calls[0].Options.Temperature, 1e-12)
	assert.Equal(t, 1000, calls[0].Options.MaxTokens)
	assert.NotContains(t, calls[0].Prompt(), "Writing style to match")
	assert.Empty(t, c.CallsMatching(polishMarker))

	history, total, _ := store.ListHistory(context.Background(), 10, 0)
	require.Equal(t, 1, total)
	assert.Equal(t, model.TemplateUsedFromScratch, history[0].TemplateUsed)
	assert.Nil(t, history[0].TemplateID)
}

func TestGenerateBelowThresholdBorrowsStyle(t *testing.T) {
	store := memstore.New()
	seedTemplate(store, "retrospective", "{{body}}", 0.2)
	seedTemplate(store, "sprint_commitment", "{{body}}", 0.6)
	c := scripted()

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).
		Generate(context.Background(), request, map[string]string{"sprint_name": "Sprint 24"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, model.TemplateUsedFromScratch, res.Email.TemplateUsed)

	prompt := c.CallsMatching(fromScratchMarker)[0].Prompt()
	assert.Contains(t, prompt, "- Tone: professional")
	assert.Contains(t, prompt, "- Structure: bullet_list")
	assert.Contains(t, prompt, `"sprint_name": "Sprint 24"`)
	assert.Contains(t, c.CallsMatching(subjectMarker)[0].Prompt(), "Sprint: Sprint 24")
}

func TestGeneratePolishFailureKeepsDraft(t *testing.T) {
	store := memstore.New()
	seedTemplate(store, "sprint_update", "Hi {{recipients}},\n\n{{update_items}}", 0.85)
	c := llmtest.NewScripted().
		Fail(polishMarker).
		On(variableMarker+" 'recipients'", "Backend Team").
		On(variableMarker, "Generated text").
		On(subjectMarker, "Weekly Update")

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).Generate(context.Background(), request, nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Hi Backend Team,\n\nGenerated text", res.Email.Content)
	assert.False(t, res.TemplateInfo.Polished)
}

func TestGenerateSubstitution(t *testing.T) {
	store := memstore.New()
	seedTemplate(store, "sprint_update", "Hi {{name}}, {{body}}", 1)
	c := llmtest.NewScripted().
		Fail(polishMarker).
		On(variableMarker+" 'body'", "here is the update.")

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).
		Generate(context.Background(), request, map[string]string{"name": "Alex"})

	require.True(t, res.Success, res.Error)
	assert.Contains(t, res.Email.Content, "Hi Alex,")
	assert.Equal(t, "Hi Alex, here is the update.", res.Email.Content)
	assert.NotContains(t, res.Email.Content, "{{")
	assert.Equal(t, []string{"name"}, res.TemplateInfo.FromContext)
	assert.Equal(t, []string{"body"}, res.TemplateInfo.Generated)

	for _, call := range c.CallsMatching(variableMarker) {
		assert.NotContains(t, call.Prompt(), "'name'")
	}
}

func TestGeneratePlaceholderFailureUsesBracketName(t *testing.T) {
	store := memstore.New()
	seedTemplate(store, "sprint_update", "Hi {{name}}, {{body}}", 1)
	c := llmtest.NewScripted().Fail(polishMarker).Fail(variableMarker)

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).
		Generate(context.Background(), request, map[string]string{"name": "Alex"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Hi Alex, [body]", res.Email.Content)
	assert.NotContains(t, res.Email.Content, "{{")
	assert.Empty(t, res.TemplateInfo.Generated)
}

func TestGenerateSubjectFailureUsesDefault(t *testing.T) {
	store := memstore.New()
	c := llmtest.NewScripted().Fail(subjectMarker).On(fromScratchMarker, "body")

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).Generate(context.Background(), request, nil)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Sprint Email", res.Email.Subject)
	assert.Len(t, c.CallsMatching(subjectMarker), 1)
}

func TestGenerateFromScratchProviderFailure(t *testing.T) {
	store := memstore.New()
	c := llmtest.NewScripted().Fail(fromScratchMarker)

	res := NewPipeline(store, c, embedding.Embed, zap.NewNop()).Generate(context.Background(), request, nil)

	assert.False(t, res.Success)
	assert.Nil(t, res.Email)
	assert.Equal(t, "Failed to generate email: text completion provider unavailable", res.Error)
	assert.NotContains(t, res.Error, "scripted failure")
	_, total, _ := store.ListHistory(context.Background(), 10, 0)
	assert.Zero(t, total)
}

type failingStore struct {
	*memstore.Store
}

func (failingStore) ListPatternVectors(context.Context) ([]model.PatternVector, error) {
	return nil, errors.New("connection refused")
}

func TestGenerateStorageFailure(t *testing.T) {
	c := scripted()
	res := NewPipeline(failingStore{memstore.New()}, c, embedding.Embed, zap.NewNop()).
		Generate(context.Background(), request, nil)

	assert.False(t, res.Success)
	assert.Equal(t, "Failed to generate email: storage failure", res.Error)
	assert.NotContains(t, res.Error, "connection refused")
	assert.Empty(t, c.Calls())
}

func TestFailureReason(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"provider": {fmt.Errorf("polish: %w: deepseek api error: status 500: {\"secret\":1}", llm.ErrProviderFailure), "text completion provider unavailable"},
		"deadline": {fmt.Errorf("load templates: %w", context.DeadlineExceeded), "request cancelled or timed out"},
		"storage":  {errors.New(`pq: relation "email_templates" does not exist`), "storage failure"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, failureReason(tc.err))
		})
	}
}

func TestHintsForUsesSourcePatterns(t *testing.T) {
	src := int64(7)
	tmpl := model.EmailTemplate{Style: model.StyleAttributes{Tone: "professional"}, SourceEmailID: &src}
	vectors := []model.PatternVector{
		{SourceEmailID: &src, Metadata: &model.Patterns{Tone: "casual", TechnicalTerms: []string{"VLE"}}},
	}

	h := hintsFor(tmpl, vectors)
	assert.Equal(t, "casual", h.Tone)
	assert.Equal(t, []string{"VLE"}, h.TechnicalTerms)

	prompt := variablePrompt("sprint_goal", request, nil, h)
	assert.Contains(t, prompt, "- Technical terms used: VLE")
	assert.Contains(t, prompt, "'{{sprint_goal}}'")
	assert.NotContains(t, prompt, "Additional context")
}

var _ llm.Completer = (*llmtest.Scripted)(nil)
