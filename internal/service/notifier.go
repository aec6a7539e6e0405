package service

import (
	"context"
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Notifier is told about chains that stopped before producing every draw
type Notifier interface {
	ChainAborted(ctx context.Context, run *domain.Run, chain *domain.ChainResult)
}

type nopNotifier struct{}

func (nopNotifier) ChainAborted(context.Context, *domain.Run, *domain.ChainResult) {}

// SentryNotifier reports aborted chains to Sentry
type SentryNotifier struct {
	hub *sentry.Hub
}

// NewSentryNotifier creates a notifier on a clone of the current hub
func NewSentryNotifier() *SentryNotifier {
	return &SentryNotifier{hub: sentry.CurrentHub().Clone()}
}

// ChainAborted captures the abort cause with the run and chain as tags.
func (n *SentryNotifier) ChainAborted(_ context.Context, run *domain.Run, chain *domain.ChainResult) {
	err := chain.Err
	if err == nil {
		err = apperrors.Internal(chain.AbortReason)
	}
	n.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("run_id", run.ID.String())
		scope.SetTag("model", run.ModelName)
		scope.SetTag("chain", strconv.Itoa(chain.Chain))
		scope.SetTag("error_code", apperrors.GetCode(err))
		scope.SetExtra("abort_iteration", chain.AbortIteration)
		scope.SetExtra("draws", chain.Trace.Len())
		scope.SetExtra("draws_requested", chain.DrawsRequested)
		if app := apperrors.GetAppError(err); app != nil {
			for k, v := range app.Details {
				scope.SetExtra(k, v)
			}
		}
		n.hub.CaptureException(err)
	})
}
