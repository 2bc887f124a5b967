package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sprintmail/internal/embedding"
	"sprintmail/internal/llm"
	"sprintmail/internal/repository/memstore"
	"sprintmail/internal/service/learning"
)

func TestTrainingEmailsAreValid(t *testing.T) {
	for _, in := range TrainingEmails {
		assert.NoError(t, in.Validate(), in.Subject)
	}
}

func TestRunSkipsDuplicates(t *testing.T) {
	store := memstore.New()
	svc := learning.NewService(store, llm.NewMock(""), embedding.Embed, zap.NewNop())
	ctx := context.Background()

	rep, err := Run(ctx, svc, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, rep.Inserted, len(TrainingEmails))
	assert.Zero(t, rep.Skipped)

	rep, err = Run(ctx, svc, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, rep.Inserted)
	assert.Equal(t, len(TrainingEmails), rep.Skipped)

	outcomes, err := svc.AnalyzeAll(ctx)
	require.NoError(t, err)
	require.Len(t, outcomes, len(TrainingEmails))
	for _, o := range outcomes {
		assert.Equal(t, "success", o.Status, o.Error)
	}
}
