package sampler

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	"github.com/ynkmn/reactoruq/internal/likelihood"
	"github.com/ynkmn/reactoruq/internal/model"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/prior"
	"github.com/ynkmn/reactoruq/internal/reactor"
)

// linearTarget builds the centred linear reactor model on synthetic data,
// optionally with a fixed starting point.
func linearTarget(t *testing.T, withGradient bool, start ...float64) *model.Model {
	t.Helper()
	tbl, err := reactor.Synthesize(reactor.SyntheticConfig{Kind: reactor.KindLinear, Points: 100, Seed: 1})
	require.NoError(t, err)
	inputs, err := tbl.Exogenous([]string{reactor.ColumnFuel, reactor.ColumnCoolant})
	require.NoError(t, err)
	observed, err := tbl.Observed(reactor.ColumnObserved)
	require.NoError(t, err)

	lin, err := reactor.Lookup(reactor.KindLinear)
	require.NoError(t, err)
	var ev evaluator.Evaluator
	if withGradient {
		ev, err = lin.Evaluator("linear", reactor.DefaultBinding, inputs)
		require.NoError(t, err)
	} else {
		ev = evaluator.NewFunc("linear-blackbox", lin.Forward(reactor.DefaultBinding), inputs, inputs.Rows())
	}

	lik, err := likelihood.New(ev, observed)
	require.NoError(t, err)
	params := []model.Parameter{
		{Name: "a", Prior: prior.Normal{Mu: 0, Sigma: 0.1}},
		{Name: "b", Prior: prior.Normal{Mu: 0, Sigma: 0.1}},
	}
	for i := range start {
		params[i].Initial = &start[i]
	}
	m, err := model.New(model.Config{
		Name:       "linear",
		Parameters: params,
		FixedScale: 0.5,
		Likelihood: lik,
	})
	require.NoError(t, err)
	return m
}

// scriptedTarget is a one-parameter model whose evaluator fails according
// to fail, given the 1-based call number.
func scriptedTarget(t *testing.T, fail func(call int64) bool) (*model.Model, *atomic.Int64) {
	t.Helper()
	calls := &atomic.Int64{}
	fn := func(_ context.Context, p domain.ParameterVector, _ *domain.ExogenousInputs) (domain.PredictedVector, error) {
		if fail(calls.Add(1)) {
			return nil, apperrors.ProcessFailure("forward model exited with code 1")
		}
		return domain.PredictedVector{p.Values[0], p.Values[0]}, nil
	}
	lik, err := likelihood.New(evaluator.NewFunc("scripted", fn, nil, 2), domain.ObservedVector{0.3, 0.5})
	require.NoError(t, err)
	m, err := model.New(model.Config{
		Name:       "scripted",
		Parameters: []model.Parameter{{Name: "k", Prior: prior.Normal{Mu: 0, Sigma: 1}}},
		FixedScale: 1,
		Likelihood: lik,
	})
	require.NoError(t, err)
	return m, calls
}

func TestNewDriver_Validation(t *testing.T) {
	blackbox := linearTarget(t, false)

	_, err := NewDriver(blackbox, Config{Algorithm: AlgorithmHMC, Draws: 10})
	require.Error(t, err)
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = NewDriver(blackbox, Config{Algorithm: "nuts", Draws: 10})
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = NewDriver(blackbox, Config{Draws: 0})
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = NewDriver(blackbox, Config{Draws: 10, TargetAccept: 1.5})
	assert.True(t, apperrors.IsConfiguration(err))

	_, err = NewDriver(nil, Config{Draws: 10})
	assert.True(t, apperrors.IsConfiguration(err))

	d, err := NewDriver(linearTarget(t, true), Config{Algorithm: AlgorithmHMC, Draws: 10})
	require.NoError(t, err)
	assert.True(t, d.Algorithm().RequiresGradient)
	assert.Equal(t, 50, d.Config().MaxConsecutiveFailures)

	assert.Equal(t, []string{"hmc", "metropolis"}, Algorithms())
}

func TestDriver_DeterministicUnderFixedSeed(t *testing.T) {
	for _, algo := range []string{AlgorithmMetropolis, AlgorithmHMC} {
		t.Run(algo, func(t *testing.T) {
			target := linearTarget(t, true)
			cfg := Config{Algorithm: algo, Warmup: 50, Draws: 50, Chains: 3, Parallelism: 3, Seed: 7}

			run := func(cfg Config) *Result {
				d, err := NewDriver(target, cfg)
				require.NoError(t, err)
				return d.Run(context.Background())
			}

			first := run(cfg)
			second := run(cfg)
			require.Len(t, first.Chains, 3)
			for i := range first.Chains {
				assert.Equal(t, domain.ChainStateCompleted, first.Chains[i].State)
				assert.Equal(t, first.Chains[i].Trace.Draws, second.Chains[i].Trace.Draws, "chain %d", i)
			}
			assert.NotEqual(t, first.Chains[0].Trace.Draws, first.Chains[1].Trace.Draws)

			cfg.Seed = 8
			other := run(cfg)
			assert.NotEqual(t, first.Chains[0].Trace.Draws, other.Chains[0].Trace.Draws)
		})
	}
}

func TestDriver_AlwaysFailingAbortsAfterExactlyK(t *testing.T) {
	const k = 5
	target, calls := scriptedTarget(t, func(int64) bool { return true })

	d, err := NewDriver(target, Config{Warmup: 10, Draws: 100, Chains: 2, MaxConsecutiveFailures: k})
	require.NoError(t, err)
	res := d.Run(context.Background())

	for _, c := range res.Chains {
		assert.Equal(t, domain.ChainStateAborted, c.State)
		assert.Equal(t, k, c.FailedEvaluations)
		assert.Equal(t, k, c.Evaluations)
		assert.Less(t, c.Trace.Len(), c.DrawsRequested)
		assert.True(t, apperrors.IsConsecutiveFailureLimit(c.Err), "got %v", c.Err)
		assert.NotEmpty(t, c.AbortReason)
	}
	assert.EqualValues(t, 2*k, calls.Load())
	assert.Equal(t, domain.RunStatusFailed, res.Status())
}

func TestDriver_FailuresMidRunKeepPartialTrace(t *testing.T) {
	const k = 7
	// The first 20 evaluations succeed, every later one fails.
	target, _ := scriptedTarget(t, func(call int64) bool { return call > 20 })

	d, err := NewDriver(target, Config{Warmup: 5, Draws: 100, Chains: 1, MaxConsecutiveFailures: k})
	require.NoError(t, err)
	c := d.Run(context.Background()).Chains[0]

	assert.Equal(t, domain.ChainStateAborted, c.State)
	assert.Equal(t, k, c.FailedEvaluations)
	assert.Equal(t, 20+k, c.Evaluations)
	// 1 initial + 19 good steps + 6 failed steps before the limit trips.
	assert.Equal(t, 20, c.Trace.Len())
	assert.Equal(t, 25, c.AbortIteration)
	assert.False(t, c.Trace.Sealed())

	appErr := apperrors.GetAppError(c.Err)
	require.NotNil(t, appErr)
	assert.Equal(t, "0", appErr.Details["chain"])
	assert.Equal(t, "25", appErr.Details["iteration"])

	failed := 0
	for _, draw := range c.Trace.Draws {
		if draw.EvaluationFailed {
			failed++
			assert.False(t, draw.Accepted)
		}
	}
	assert.Equal(t, k-1, failed)
}

func TestDriver_IntermittentFailuresDoNotAbort(t *testing.T) {
	target, _ := scriptedTarget(t, func(call int64) bool { return call%3 == 0 })

	d, err := NewDriver(target, Config{Warmup: 20, Draws: 60, Chains: 1, MaxConsecutiveFailures: 2})
	require.NoError(t, err)
	c := d.Run(context.Background()).Chains[0]

	assert.Equal(t, domain.ChainStateCompleted, c.State)
	assert.Equal(t, 60, c.Trace.Len())
	assert.True(t, c.Trace.Sealed())
	assert.Positive(t, c.FailedEvaluations)
	for _, draw := range c.Trace.Draws {
		assert.False(t, math.IsInf(draw.LogPosterior, 0))
		assert.Greater(t, draw.LogLikelihood, likelihood.PenaltyLogLikelihood)
	}
}

func TestDriver_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	target, calls := scriptedTarget(t, func(int64) bool { return false })
	d, err := NewDriver(target, Config{Warmup: 10, Draws: 10, Chains: 2})
	require.NoError(t, err)
	res := d.Run(ctx)

	for _, c := range res.Chains {
		assert.Equal(t, domain.ChainStateAborted, c.State)
		assert.True(t, apperrors.IsCancelled(c.Err))
		assert.Zero(t, c.Trace.Len())
	}
	assert.Zero(t, calls.Load())
}

func TestDriver_CancelledMidRunKeepsCommittedDraws(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	target, _ := scriptedTarget(t, func(int64) bool { return false })
	stopAfter := ObserverFuncs{Draw: func(_ int, draw domain.Draw) {
		if draw.Iteration == 9 {
			cancel()
		}
	}}
	d, err := NewDriver(target, Config{Warmup: 5, Draws: 100, Chains: 1}, WithObserver(stopAfter))
	require.NoError(t, err)
	c := d.Run(ctx).Chains[0]

	assert.Equal(t, domain.ChainStateAborted, c.State)
	assert.True(t, apperrors.IsCancelled(c.Err))
	assert.Equal(t, 10, c.Trace.Len())
	assert.Equal(t, 15, c.AbortIteration)
}

func TestDriver_StateMachine(t *testing.T) {
	target, _ := scriptedTarget(t, func(int64) bool { return false })

	var mu sync.Mutex
	var seen []string
	obs := ObserverFuncs{StateChange: func(chain int, from, to domain.ChainState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(from)+">"+string(to))
	}}

	d, err := NewDriver(target, Config{Warmup: 3, Draws: 3, Chains: 1}, WithObserver(obs))
	require.NoError(t, err)
	res := d.Run(context.Background())

	assert.Equal(t, []string{
		">initialized",
		"initialized>warming_up",
		"warming_up>sampling",
		"sampling>completed",
	}, seen)
	assert.Equal(t, domain.RunStatusCompleted, res.Status())
	assert.Len(t, res.Traces(), 1)
}

func TestDriver_ExplicitInitialIsUsed(t *testing.T) {
	calls := &atomic.Int64{}
	var first float64
	fn := func(_ context.Context, p domain.ParameterVector, _ *domain.ExogenousInputs) (domain.PredictedVector, error) {
		if calls.Add(1) == 1 {
			first = p.Values[0]
		}
		return domain.PredictedVector{p.Values[0]}, nil
	}
	lik, err := likelihood.New(evaluator.NewFunc("f", fn, nil, 1), domain.ObservedVector{0})
	require.NoError(t, err)
	start := 0.25
	m, err := model.New(model.Config{
		Parameters: []model.Parameter{{Name: "k", Prior: prior.Normal{Mu: 0, Sigma: 1}, Initial: &start}},
		FixedScale: 1,
		Likelihood: lik,
	})
	require.NoError(t, err)

	d, err := NewDriver(m, Config{Warmup: 0, Draws: 1, Chains: 1})
	require.NoError(t, err)
	d.Run(context.Background())
	assert.Equal(t, 0.25, first)
}

func TestDriver_RecoversLinearCoefficients(t *testing.T) {
	if testing.Short() {
		t.Skip("long-running sampler test")
	}
	tests := []struct {
		algo   string
		warmup int
		draws  int
	}{
		{algo: AlgorithmMetropolis, warmup: 1500, draws: 1500},
		{algo: AlgorithmHMC, warmup: 500, draws: 500},
	}
	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			target := linearTarget(t, true, 0, 0)
			d, err := NewDriver(target, Config{Algorithm: tt.algo, Warmup: tt.warmup, Draws: tt.draws, Chains: 2, Seed: 3})
			require.NoError(t, err)
			res := d.Run(context.Background())
			require.Equal(t, 2, res.Completed())

			for _, c := range res.Chains {
				a, _ := c.Trace.Column("a")
				b, _ := c.Trace.Column("b")
				assert.InDelta(t, 0.05, stat.Mean(a, nil), 0.005)
				assert.InDelta(t, -0.02, stat.Mean(b, nil), 0.02)
				assert.Greater(t, c.AcceptanceRate, 0.05)
			}
		})
	}
}

func TestTuneScale(t *testing.T) {
	tests := []struct {
		rate float64
		want float64
	}{
		{0.0, 0.1},
		{0.01, 0.5},
		{0.1, 0.9},
		{0.3, 1},
		{0.6, 1.1},
		{0.8, 2},
		{0.99, 10},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tuneScale(1, tt.rate), 1e-12, "rate %v", tt.rate)
	}
}

func TestChainSeed(t *testing.T) {
	seen := map[uint64]bool{}
	for c := 0; c < 64; c++ {
		s := ChainSeed(42, c)
		assert.False(t, seen[s])
		seen[s] = true
		assert.Equal(t, s, ChainSeed(42, c))
	}
	assert.NotEqual(t, ChainSeed(1, 0), ChainSeed(2, 0))
}
