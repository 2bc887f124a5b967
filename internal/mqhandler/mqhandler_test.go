package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "sprintmail/contracts/mq"
	"sprintmail/internal/llm"
	"sprintmail/internal/model"
	"sprintmail/internal/repository"
	"sprintmail/internal/repository/memstore"
	"sprintmail/internal/service/learning"
	"sprintmail/pkg/trace"
	"sprintmail/pkg/util"
)

type fakeAnalyzer struct {
	errs   []error
	calls  int
	traces []string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, id int64) (*learning.AnalysisResult, error) {
	f.calls++
	f.traces = append(f.traces, trace.FromContext(ctx))
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &learning.AnalysisResult{TrainingEmailID: id, TemplateID: 9, Status: "success"}, nil
}

func setup(t *testing.T, analyzer Analyzer) (*TrainingEmailUploadedHandler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewTrainingEmailUploadedHandler(
		analyzer,
		util.NewDeduper(rdb, time.Hour, nil),
		util.NewRetryCounter(rdb, time.Hour),
		5,
		zap.NewNop(),
	)
	return h, mr
}

func uploaded(t *testing.T, id int64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.TrainingEmailUploadedPayload{TrainingEmailID: id, EmailType: "sprint_update", TraceID: "trace-abc"})
	require.NoError(t, err)
	return raw
}

func providerErr() error {
	return fmt.Errorf("%w: %w", learning.ErrAnalysisFailure, llm.ErrProviderFailure)
}

func TestUploadedHandler_SuccessAndDedupe(t *testing.T) {
	a := &fakeAnalyzer{}
	h, mr := setup(t, a)
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, uploaded(t, 1)))
	require.NoError(t, h.Handle(ctx, uploaded(t, 1)))

	assert.Equal(t, 1, a.calls)
	assert.Equal(t, []string{"trace-abc"}, a.traces)
	assert.True(t, mr.Exists(util.FormatDedupKey(analyzeHandlerName, 1)))
	assert.False(t, mr.Exists(util.FormatRetryKey(analyzeHandlerName, 1)))
}

func TestUploadedHandler_RetryableFailureRequeues(t *testing.T) {
	a := &fakeAnalyzer{errs: []error{providerErr()}}
	h, mr := setup(t, a)
	ctx := context.Background()

	err := h.Handle(ctx, uploaded(t, 2))
	assert.ErrorIs(t, err, learning.ErrAnalysisFailure)
	assert.False(t, mr.Exists(util.FormatDedupKey(analyzeHandlerName, 2)))

	require.NoError(t, h.Handle(ctx, uploaded(t, 2)))
	assert.Equal(t, 2, a.calls)
}

func TestUploadedHandler_GivesUpAfterMaxRetries(t *testing.T) {
	errs := make([]error, 10)
	for i := range errs {
		errs[i] = providerErr()
	}
	a := &fakeAnalyzer{errs: errs}
	h, mr := setup(t, a)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.Error(t, h.Handle(ctx, uploaded(t, 3)), "attempt %d", i+1)
	}
	assert.NoError(t, h.Handle(ctx, uploaded(t, 3)))
	assert.Equal(t, 6, a.calls)

	// 放弃后重放同一事件会再次分析
	assert.False(t, mr.Exists(util.FormatDedupKey(analyzeHandlerName, 3)))
	assert.False(t, mr.Exists(util.FormatRetryKey(analyzeHandlerName, 3)))
	a.errs = nil
	require.NoError(t, h.Handle(ctx, uploaded(t, 3)))
	assert.Equal(t, 7, a.calls)
}

func TestUploadedHandler_NotPendingIsAcked(t *testing.T) {
	for _, err := range []error{
		fmt.Errorf("training email 4: %w", learning.ErrAlreadyProcessed),
		fmt.Errorf("load training email 4: %w", repository.ErrNotFound),
		repository.ErrConflict,
	} {
		h, _ := setup(t, &fakeAnalyzer{errs: []error{err}})
		assert.NoError(t, h.Handle(context.Background(), uploaded(t, 4)))
	}
}

func TestUploadedHandler_NonRetryableIsAcked(t *testing.T) {
	a := &fakeAnalyzer{errs: []error{errors.New("template column overflow")}}
	h, mr := setup(t, a)
	ctx := context.Background()
	assert.NoError(t, h.Handle(ctx, uploaded(t, 5)))
	assert.Equal(t, 1, a.calls)
	assert.False(t, mr.Exists(util.FormatDedupKey(analyzeHandlerName, 5)))

	require.NoError(t, h.Handle(ctx, uploaded(t, 5)))
	assert.Equal(t, 2, a.calls)
}

func TestUploadedHandler_BadPayload(t *testing.T) {
	a := &fakeAnalyzer{}
	h, _ := setup(t, a)
	assert.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"training_email_id":"x"}`)))
	assert.Zero(t, a.calls)
}

func TestFeedbackHandler_RecomputesSuccessRate(t *testing.T) {
	store := memstore.New()
	tmpl := store.AddTemplate(model.EmailTemplate{PatternType: "sprint_update"})
	ctx := context.Background()

	for _, rating := range []int{5, 3} {
		rec := &model.GenerationRecord{TemplateUsed: "sprint_update", TemplateID: &tmpl.ID}
		require.NoError(t, store.CreateGenerationRecord(ctx, rec))
		_, err := store.SaveFeedback(ctx, rec.ID, model.Feedback{Rating: rating})
		require.NoError(t, err)
	}

	h := NewFeedbackSubmittedHandler(store, zap.NewNop())
	raw, _ := json.Marshal(mqcontracts.FeedbackSubmittedPayload{HistoryID: 1, TemplateID: &tmpl.ID, Rating: 3})
	require.NoError(t, h.Handle(ctx, raw))

	got, ok := store.Template(tmpl.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.8, got.SuccessRate, 1e-9)
}

func TestFeedbackHandler_SkipsWithoutTemplate(t *testing.T) {
	h := NewFeedbackSubmittedHandler(memstore.New(), zap.NewNop())
	raw, _ := json.Marshal(mqcontracts.FeedbackSubmittedPayload{HistoryID: 1, Rating: 4})
	assert.NoError(t, h.Handle(context.Background(), raw))

	missing := int64(404)
	raw, _ = json.Marshal(mqcontracts.FeedbackSubmittedPayload{HistoryID: 1, TemplateID: &missing, Rating: 4})
	assert.NoError(t, h.Handle(context.Background(), raw))
}
