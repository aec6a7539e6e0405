// Package likelihood turns an evaluator into a log-likelihood the sampler can
// call like any other density term.
package likelihood

import (
	"context"
	"fmt"
	"math"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// PenaltyLogLikelihood scores a failed evaluation. It is finite so that the
// sampler can compare it and reject the proposal instead of propagating -Inf.
const PenaltyLogLikelihood = -1e10

// Result is the outcome of one likelihood evaluation. When Err is set,
// LogLikelihood is PenaltyLogLikelihood and Predicted is nil.
type Result struct {
	LogLikelihood float64
	Predicted     domain.PredictedVector
	Err           error
}

// Failed reports whether the evaluation failed
func (r Result) Failed() bool {
	return r.Err != nil
}

// Gradient is a log-likelihood with its derivatives.
type Gradient struct {
	LogLikelihood float64
	// DParams holds d(log-likelihood)/d(parameter_j) in vector order.
	DParams []float64
	// DScale is d(log-likelihood)/d(noise scale).
	DScale float64
}

// Adapter scores parameter vectors against observed data through an evaluator.
type Adapter struct {
	ev       evaluator.Evaluator
	grad     evaluator.GradientEvaluator
	observed domain.ObservedVector
	noise    NoiseModel
}

// Option configures an Adapter
type Option func(*Adapter)

// WithNoise selects the noise model; the default is Gaussian.
func WithNoise(m NoiseModel) Option {
	return func(a *Adapter) {
		if m != nil {
			a.noise = m
		}
	}
}

// New binds ev to the observed data.
func New(ev evaluator.Evaluator, observed domain.ObservedVector, opts ...Option) (*Adapter, error) {
	if ev == nil {
		return nil, apperrors.Configuration("likelihood requires an evaluator")
	}
	if len(observed) == 0 {
		return nil, apperrors.Configuration("likelihood requires observed data")
	}
	for i, y := range observed {
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, apperrors.Configuration(fmt.Sprintf("observation %d is not finite", i))
		}
	}

	a := &Adapter{
		ev:       ev,
		observed: append(domain.ObservedVector(nil), observed...),
		noise:    Gaussian{},
	}
	if g, ok := ev.(evaluator.GradientEvaluator); ok {
		a.grad = g
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Observed returns the observed vector. It must not be modified.
func (a *Adapter) Observed() domain.ObservedVector {
	return a.observed
}

// EvaluatorName returns the name of the underlying evaluator
func (a *Adapter) EvaluatorName() string {
	return a.ev.Name()
}

// HasGradient reports whether Gradient can be called.
func (a *Adapter) HasGradient() bool {
	return a.grad != nil
}

// Evaluate runs the forward model once and scores the prediction.
func (a *Adapter) Evaluate(ctx context.Context, params domain.ParameterVector, scale float64) Result {
	if !(scale > 0) || math.IsInf(scale, 0) {
		return Result{
			LogLikelihood: PenaltyLogLikelihood,
			Err:           apperrors.Configuration(fmt.Sprintf("noise scale must be positive and finite, got %v", scale)),
		}
	}

	pred, err := a.Predict(ctx, params)
	if err != nil {
		return Result{LogLikelihood: PenaltyLogLikelihood, Err: err}
	}

	ll := a.noise.LogDensity(a.observed, pred, scale)
	if math.IsNaN(ll) {
		return Result{
			LogLikelihood: PenaltyLogLikelihood,
			Err:           apperrors.OutputMalformed("log-likelihood is NaN"),
		}
	}
	return Result{LogLikelihood: ll, Predicted: pred}
}

// Predict runs the forward model once and checks the prediction lines up with
// the observations.
func (a *Adapter) Predict(ctx context.Context, params domain.ParameterVector) (domain.PredictedVector, error) {
	pred, err := a.ev.Evaluate(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(pred) != len(a.observed) {
		return nil, apperrors.OutputMalformed(
			fmt.Sprintf("predicted vector has %d values, observed has %d", len(pred), len(a.observed)))
	}
	return pred, nil
}

// LogLikelihood returns the log-likelihood, or PenaltyLogLikelihood when the
// evaluation fails for any reason.
func (a *Adapter) LogLikelihood(ctx context.Context, params domain.ParameterVector, scale float64) float64 {
	return a.Evaluate(ctx, params, scale).LogLikelihood
}

// Gradient returns the log-likelihood with its derivatives. It is a
// configuration error to call it when HasGradient is false.
func (a *Adapter) Gradient(ctx context.Context, params domain.ParameterVector, scale float64) (Gradient, error) {
	if a.grad == nil {
		return Gradient{}, apperrors.Configuration("evaluator " + a.ev.Name() + " does not provide a gradient")
	}

	res := a.Evaluate(ctx, params, scale)
	if res.Err != nil {
		return Gradient{LogLikelihood: res.LogLikelihood}, res.Err
	}

	jac, err := a.grad.Jacobian(ctx, params)
	if err != nil {
		return Gradient{LogLikelihood: PenaltyLogLikelihood}, err
	}
	if len(jac) != len(a.observed) {
		return Gradient{LogLikelihood: PenaltyLogLikelihood},
			apperrors.OutputMalformed(fmt.Sprintf("jacobian has %d rows, observed has %d", len(jac), len(a.observed)))
	}

	dPred, dScale := a.noise.Gradient(a.observed, res.Predicted, scale)
	dParams := make([]float64, params.Len())
	for i, row := range jac {
		if len(row) != params.Len() {
			return Gradient{LogLikelihood: PenaltyLogLikelihood},
				apperrors.OutputMalformed(fmt.Sprintf("jacobian row %d has %d columns", i, len(row)))
		}
		for j, dij := range row {
			dParams[j] += dPred[i] * dij
		}
	}

	return Gradient{LogLikelihood: res.LogLikelihood, DParams: dParams, DScale: dScale}, nil
}
