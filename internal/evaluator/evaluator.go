// Package evaluator runs forward models: external processes exchanging files
// with the sampler, or in-process functions. Every evaluator returns either a
// complete predicted vector or a typed failure, never a partial result.
package evaluator

import (
	"context"
	"strconv"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Evaluator maps a parameter vector to a predicted vector. Exogenous inputs
// are bound when the evaluator is built. Implementations must be safe for
// concurrent use by multiple chains.
type Evaluator interface {
	Evaluate(ctx context.Context, params domain.ParameterVector) (domain.PredictedVector, error)
	Name() string
}

// GradientEvaluator is an Evaluator that can also differentiate its output.
// Jacobian returns one row per observation and one column per parameter.
type GradientEvaluator interface {
	Evaluator
	Jacobian(ctx context.Context, params domain.ParameterVector) ([][]float64, error)
}

// HasJacobian reports whether ev exposes derivatives
func HasJacobian(ev Evaluator) bool {
	_, ok := ev.(GradientEvaluator)
	return ok
}

type chainKey struct{}

// WithChain tags ctx with the index of the chain issuing evaluations.
func WithChain(ctx context.Context, chain int) context.Context {
	return context.WithValue(ctx, chainKey{}, chain)
}

// ChainFrom returns the chain index stored by WithChain, or 0.
func ChainFrom(ctx context.Context) int {
	if c, ok := ctx.Value(chainKey{}).(int); ok {
		return c
	}
	return 0
}

// Outcome classifies an evaluation error
func Outcome(err error) domain.EvaluationOutcome {
	if err == nil {
		return domain.EvaluationOutcomeSuccess
	}
	switch apperrors.GetCode(err) {
	case apperrors.CodeProcessFailure:
		return domain.EvaluationOutcomeProcessFailure
	case apperrors.CodeOutputMissing:
		return domain.EvaluationOutcomeOutputMissing
	case apperrors.CodeOutputMalformed:
		return domain.EvaluationOutcomeOutputMalformed
	case apperrors.CodeCancelled:
		return domain.EvaluationOutcomeCancelled
	}
	return domain.EvaluationOutcomeError
}

// checkLength enforces that a prediction matches the observation count.
func checkLength(pred domain.PredictedVector, expected int) error {
	if expected > 0 && len(pred) != expected {
		return apperrors.OutputMalformed("predicted vector has wrong length").
			WithDetail("expected", strconv.Itoa(expected)).
			WithDetail("actual", strconv.Itoa(len(pred)))
	}
	return nil
}
