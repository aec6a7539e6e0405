package diagnostics

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// DefaultPredictiveSamples is the number of draws re-evaluated when none is
// requested.
const DefaultPredictiveSamples = 100

// predictiveStream separates the selection stream from the chain streams
// seeded with the same run seed.
const predictiveStream = 0x70726564

// Predictor runs the forward model at a posterior draw given in Names order.
type Predictor interface {
	Names() []string
	Observed() domain.ObservedVector
	Predict(ctx context.Context, theta []float64) (domain.PredictedVector, error)
}

// PredictiveConfig selects the draws Predictive re-evaluates.
type PredictiveConfig struct {
	Samples     int
	Seed        uint64
	Parallelism int
}

// Predictive re-runs the forward model at Samples draws picked without
// replacement from all chains and summarises the predictions per observation
// as mean, population sd and a mean -/+ 2 sd band. Draws whose evaluation
// fails are counted and skipped; at least one must succeed.
func Predictive(ctx context.Context, p Predictor, traces map[int]*domain.Trace, cfg PredictiveConfig) (*domain.PredictiveSummary, error) {
	pool, err := pooledDraws(traces, p.Names())
	if err != nil {
		return nil, err
	}
	n := cfg.Samples
	if n <= 0 {
		n = DefaultPredictiveSamples
	}
	n = min(n, len(pool))

	rng := rand.New(rand.NewPCG(cfg.Seed, predictiveStream))
	picked := rng.Perm(len(pool))[:n]

	preds := make([]domain.PredictedVector, n)
	errs := make([]error, n)
	var g errgroup.Group
	g.SetLimit(max(cfg.Parallelism, 1))
	for i, idx := range picked {
		g.Go(func() error {
			preds[i], errs[i] = p.Predict(ctx, pool[idx])
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Cancelled("predictive evaluation cancelled").WithError(err)
	}

	observed := p.Observed()
	cols := make([][]float64, len(observed))
	s := &domain.PredictiveSummary{Seed: cfg.Seed, Requested: n}
	var firstErr error
	for i, pred := range preds {
		err := errs[i]
		if err == nil && len(pred) != len(observed) {
			err = apperrors.OutputMalformed(fmt.Sprintf("predicted vector has %d values, observed has %d", len(pred), len(observed)))
		}
		if err != nil {
			if !apperrors.IsEvaluationFailure(err) {
				return nil, err
			}
			s.Failed++
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.Evaluated++
		for j, v := range pred {
			cols[j] = append(cols[j], v)
		}
	}
	if s.Evaluated == 0 {
		return nil, fmt.Errorf("none of %d predictive draws could be evaluated: %w", n, firstErr)
	}

	s.Observations = make([]domain.PredictivePoint, len(observed))
	for j, col := range cols {
		mean, sd := stat.PopMeanStdDev(col, nil)
		s.Observations[j] = domain.PredictivePoint{
			Index:    j,
			Observed: observed[j],
			Mean:     mean,
			SD:       sd,
			Lower:    mean - 2*sd,
			Upper:    mean + 2*sd,
		}
	}
	return s, nil
}

// pooledDraws lists the parameter values of every draw, chains in id order.
func pooledDraws(traces map[int]*domain.Trace, names []string) ([][]float64, error) {
	ids := make([]int, 0, len(traces))
	for id := range traces {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var pool [][]float64
	for _, id := range ids {
		t := traces[id]
		if t.Len() == 0 {
			continue
		}
		if !slices.Equal(t.Names, names) {
			return nil, apperrors.Conflict(fmt.Sprintf("chain %d draws %v do not match model parameters %v", id, t.Names, names))
		}
		for _, d := range t.Draws {
			pool = append(pool, d.Values)
		}
	}
	if len(pool) == 0 {
		return nil, apperrors.Validation("no posterior draws to predict from")
	}
	return pool, nil
}
