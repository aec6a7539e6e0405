package evaluator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
)

// Instrumented records metrics and debug logs for every evaluation.
type Instrumented struct {
	inner  Evaluator
	logger *zap.Logger
}

type instrumentedGradient struct {
	*Instrumented
	grad GradientEvaluator
}

func (i *instrumentedGradient) Jacobian(ctx context.Context, params domain.ParameterVector) ([][]float64, error) {
	return i.grad.Jacobian(ctx, params)
}

// Instrument wraps inner. The result exposes a Jacobian whenever inner does.
func Instrument(inner Evaluator, log *zap.Logger) Evaluator {
	i := &Instrumented{inner: inner, logger: logger.OrNop(log)}
	if g, ok := inner.(GradientEvaluator); ok {
		return &instrumentedGradient{Instrumented: i, grad: g}
	}
	return i
}

// Name returns the wrapped evaluator name
func (i *Instrumented) Name() string {
	return i.inner.Name()
}

// Evaluate delegates to the wrapped evaluator
func (i *Instrumented) Evaluate(ctx context.Context, params domain.ParameterVector) (domain.PredictedVector, error) {
	start := time.Now()
	pred, err := i.inner.Evaluate(ctx, params)
	duration := time.Since(start)

	outcome := Outcome(err)
	metrics.RecordEvaluation(i.inner.Name(), string(outcome), duration)

	if err != nil && apperrors.IsEvaluationFailure(err) {
		i.logger.Debug("evaluation failed",
			zap.String("evaluator", i.inner.Name()),
			zap.Int("chain", ChainFrom(ctx)),
			zap.String("outcome", string(outcome)),
			zap.Float64s("params", params.Values),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
	}
	return pred, err
}
