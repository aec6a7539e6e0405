package evaluator

import (
	"context"
	"fmt"
	"math"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// ForwardFunc is an in-process forward model.
type ForwardFunc func(ctx context.Context, params domain.ParameterVector, inputs *domain.ExogenousInputs) (domain.PredictedVector, error)

// JacobianFunc returns d(prediction_i)/d(param_j).
type JacobianFunc func(ctx context.Context, params domain.ParameterVector, inputs *domain.ExogenousInputs) ([][]float64, error)

// FuncEvaluator wraps a ForwardFunc as a black-box evaluator.
type FuncEvaluator struct {
	name     string
	fn       ForwardFunc
	inputs   *domain.ExogenousInputs
	expected int
}

// NewFunc binds fn to fixed exogenous inputs. expected is the required
// prediction length; 0 disables the check.
func NewFunc(name string, fn ForwardFunc, inputs *domain.ExogenousInputs, expected int) *FuncEvaluator {
	return &FuncEvaluator{name: name, fn: fn, inputs: inputs, expected: expected}
}

// Name returns the evaluator name
func (e *FuncEvaluator) Name() string {
	return e.name
}

// Evaluate calls the forward function on a copy of params. A panic in the
// function is reported as a process failure.
func (e *FuncEvaluator) Evaluate(ctx context.Context, params domain.ParameterVector) (pred domain.PredictedVector, err error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Cancelled("evaluation cancelled").WithError(err)
	}
	defer func() {
		if r := recover(); r != nil {
			pred = nil
			err = apperrors.ProcessFailure(fmt.Sprintf("forward model %s panicked: %v", e.name, r))
		}
	}()

	out, err := e.fn(ctx, params.Clone(), e.inputs)
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.ProcessFailure("forward model " + e.name + " failed").WithError(err)
	}
	if err := checkLength(out, e.expected); err != nil {
		return nil, err
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.OutputMalformed(fmt.Sprintf("prediction %d is not finite", i))
		}
	}
	return out, nil
}

// DifferentiableFunc is a FuncEvaluator with an analytic Jacobian.
type DifferentiableFunc struct {
	*FuncEvaluator
	jac JacobianFunc
}

// NewDifferentiableFunc binds fn and its Jacobian to fixed exogenous inputs.
func NewDifferentiableFunc(name string, fn ForwardFunc, jac JacobianFunc, inputs *domain.ExogenousInputs, expected int) *DifferentiableFunc {
	return &DifferentiableFunc{
		FuncEvaluator: NewFunc(name, fn, inputs, expected),
		jac:           jac,
	}
}

// Jacobian evaluates the derivative rule on a copy of params.
func (e *DifferentiableFunc) Jacobian(ctx context.Context, params domain.ParameterVector) (jac [][]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			jac = nil
			err = apperrors.ProcessFailure(fmt.Sprintf("jacobian of %s panicked: %v", e.name, r))
		}
	}()

	out, err := e.jac(ctx, params.Clone(), e.inputs)
	if err != nil {
		return nil, apperrors.ProcessFailure("jacobian of " + e.name + " failed").WithError(err)
	}
	if e.expected > 0 && len(out) != e.expected {
		return nil, apperrors.OutputMalformed(fmt.Sprintf("jacobian has %d rows, expected %d", len(out), e.expected))
	}
	for i, row := range out {
		if len(row) != params.Len() {
			return nil, apperrors.OutputMalformed(fmt.Sprintf("jacobian row %d has %d columns, expected %d", i, len(row), params.Len()))
		}
	}
	return out, nil
}
