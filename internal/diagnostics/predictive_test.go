package diagnostics

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// scaling predicts k*x at x = 1, 2, 3 and fails for negative k.
type scaling struct {
	fail error
}

func (scaling) Names() []string { return []string{"k"} }
func (scaling) Observed() domain.ObservedVector { return domain.ObservedVector{2, 4, 7} }

func (s scaling) Predict(_ context.Context, theta []float64) (domain.PredictedVector, error) {
	if theta[0] < 0 {
		return nil, s.fail
	}
	k := theta[0]
	return domain.PredictedVector{k, 2 * k, 3 * k}, nil
}

func constantTrace(k float64, n int) *domain.Trace {
	values := make([]float64, n)
	for i := range values {
		values[i] = k
	}
	return traceOf("k", values)
}

func TestPredictive_Band(t *testing.T) {
	traces := map[int]*domain.Trace{0: constantTrace(1, 20), 1: constantTrace(3, 20)}

	s, err := Predictive(context.Background(), scaling{}, traces, PredictiveConfig{Samples: 500, Seed: 3, Parallelism: 4})
	require.NoError(t, err)

	assert.Equal(t, 40, s.Requested)
	assert.Equal(t, 40, s.Evaluated)
	assert.Zero(t, s.Failed)
	require.Len(t, s.Observations, 3)
	for j, p := range s.Observations {
		x := float64(j + 1)
		assert.Equal(t, j, p.Index)
		assert.InDelta(t, 2*x, p.Mean, 1e-12)
		assert.InDelta(t, x, p.SD, 1e-12)
		assert.InDelta(t, 0, p.Lower, 1e-12)
		assert.InDelta(t, 4*x, p.Upper, 1e-12)
	}
	assert.Equal(t, 7.0, s.Observations[2].Observed)
	assert.Equal(t, 3, s.Covered())
}

func TestPredictive_SeededSelection(t *testing.T) {
	values := make([]float64, 200)
	for i := range values {
		values[i] = float64(i)
	}
	traces := map[int]*domain.Trace{0: traceOf("k", values)}
	ctx := context.Background()

	a, err := Predictive(ctx, scaling{}, traces, PredictiveConfig{Samples: 10, Seed: 42})
	require.NoError(t, err)
	b, err := Predictive(ctx, scaling{}, traces, PredictiveConfig{Samples: 10, Seed: 42, Parallelism: 3})
	require.NoError(t, err)
	c, err := Predictive(ctx, scaling{}, traces, PredictiveConfig{Samples: 10, Seed: 43})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 10, a.Evaluated)
	assert.NotEqual(t, a.Observations, c.Observations)
}

func TestPredictive_FailedDrawsSkipped(t *testing.T) {
	traces := map[int]*domain.Trace{0: constantTrace(-1, 5), 1: constantTrace(2, 5)}
	ev := scaling{fail: apperrors.ProcessFailure("exit status 1")}

	s, err := Predictive(context.Background(), ev, traces, PredictiveConfig{Samples: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, s.Failed)
	assert.Equal(t, 5, s.Evaluated)
	assert.Equal(t, 4.0, s.Observations[1].Mean)
	assert.Zero(t, s.Observations[1].SD)
}

func TestPredictive_Errors(t *testing.T) {
	failing := map[int]*domain.Trace{0: constantTrace(-1, 5)}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name   string
		ctx    context.Context
		ev     scaling
		traces map[int]*domain.Trace
		check  func(error) bool
	}{
		{name: "every draw fails", ctx: context.Background(), ev: scaling{fail: apperrors.OutputMissing("out.txt")}, traces: failing, check: apperrors.IsOutputMissing},
		{name: "configuration error stops", ctx: context.Background(), ev: scaling{fail: apperrors.Configuration("no gradient")}, traces: failing, check: apperrors.IsConfiguration},
		{name: "no draws", ctx: context.Background(), traces: map[int]*domain.Trace{0: constantTrace(1, 0)}, check: apperrors.IsValidation},
		{name: "other parameters", ctx: context.Background(), traces: map[int]*domain.Trace{0: traceOf("a", []float64{1})}, check: apperrors.IsConflict},
		{name: "cancelled", ctx: cancelled, traces: map[int]*domain.Trace{0: constantTrace(1, 5)}, check: apperrors.IsCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Predictive(tt.ctx, tt.ev, tt.traces, PredictiveConfig{Samples: 5})
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestRenderPredictive(t *testing.T) {
	s, err := Predictive(context.Background(), scaling{}, map[int]*domain.Trace{0: constantTrace(1, 4), 1: constantTrace(3, 4)}, PredictiveConfig{Samples: 8, Seed: 9})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderPredictive(&buf, s))
	out := buf.String()
	assert.Contains(t, out, "observed")
	assert.Contains(t, out, "8 of 8 draws evaluated (seed 9)")
	assert.Contains(t, out, "3/3 observations inside")
}
