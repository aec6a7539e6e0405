package postgres

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

func createTestRun(name string) *domain.Run {
	return &domain.Run{
		ID:        uuid.New(),
		Name:      name,
		ModelName: "reactivity-feedback",
		ModelPath: "models/reactivity.yaml",
		Algorithm: "metropolis",
		Status:    domain.RunStatusPending,
		Config:    json.RawMessage(`{"draws":100}`),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestRunRepository_Lifecycle(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	run := createTestRun("lifecycle")
	require.NoError(t, repo.Create(ctx, run))
	t.Cleanup(func() { _, _ = db.Pool.Exec(ctx, "DELETE FROM runs WHERE id = $1", run.ID) })

	require.NoError(t, repo.UpdateStatus(ctx, run.ID, domain.RunStatusRunning, ""))
	got, err := repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusRunning, got.Status)
	assert.NotNil(t, got.StartedAt)
	assert.Nil(t, got.CompletedAt)
	assert.JSONEq(t, `{"draws":100}`, string(got.Config))

	run.Status = domain.RunStatusPartial
	run.Error = "chain 1 aborted"
	run.Chains = []domain.ChainOutcome{
		{RunID: run.ID, Chain: 0, Seed: math.MaxUint64, State: domain.ChainStateCompleted, DrawsRequested: 100, DrawsCompleted: 100, AcceptanceRate: 0.3},
		{RunID: run.ID, Chain: 1, Seed: 7, State: domain.ChainStateAborted, DrawsRequested: 100, DrawsCompleted: 12, AbortIteration: 62, AbortReason: "limit"},
	}
	run.Summary = &domain.Summary{
		HDIProb: 0.95,
		Parameters: []domain.ParameterSummary{
			{Name: "a", Mean: -2, SD: 0.1, HDILower: -2.2, HDIUpper: -1.8, MCSE: math.NaN(), ESS: math.NaN(), RHat: math.NaN()},
		},
	}
	require.NoError(t, repo.SaveResults(ctx, run))

	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusPartial, got.Status)
	assert.Equal(t, "chain 1 aborted", got.Error)
	assert.NotNil(t, got.CompletedAt)
	require.Len(t, got.Chains, 2)
	assert.Equal(t, uint64(math.MaxUint64), got.Chains[0].Seed)
	assert.Equal(t, 62, got.Chains[1].AbortIteration)
	require.NotNil(t, got.Summary)
	p, ok := got.Summary.Parameter("a")
	require.True(t, ok)
	assert.True(t, math.IsNaN(p.RHat))

	// Saving again replaces the chain rows.
	run.Chains = run.Chains[:1]
	require.NoError(t, repo.SaveResults(ctx, run))
	got, err = repo.GetByID(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got.Chains, 1)
}

func TestRunRepository_NotFound(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, uuid.New())
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(repo.UpdateStatus(ctx, uuid.New(), domain.RunStatusFailed, "x")))
}

func TestRunRepository_ListPages(t *testing.T) {
	db := getTestDB(t)
	repo := NewRunRepository(db)
	ctx := context.Background()

	model := "list-" + uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := range 5 {
		run := createTestRun("page")
		run.ModelName = model
		run.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, repo.Create(ctx, run))
	}
	t.Cleanup(func() { _, _ = db.Pool.Exec(ctx, "DELETE FROM runs WHERE model_name = $1", model) })

	filter := &domain.RunFilter{ModelName: model}
	first, err := repo.List(ctx, filter, 3, "")
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.TotalCount)
	require.Len(t, first.Runs, 3)
	assert.True(t, first.HasMore)
	assert.True(t, first.Runs[0].CreatedAt.After(first.Runs[1].CreatedAt))

	second, err := repo.List(ctx, filter, 3, first.NextCursor)
	require.NoError(t, err)
	require.Len(t, second.Runs, 2)
	assert.False(t, second.HasMore)
	assert.Empty(t, second.NextCursor)

	_, err = repo.List(ctx, filter, 3, "garbage!")
	assert.Error(t, err)
}
