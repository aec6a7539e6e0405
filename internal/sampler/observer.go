package sampler

import (
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
)

// Observer is notified of chain progress. Calls for one chain are made from
// that chain's goroutine, in order; different chains call concurrently.
type Observer interface {
	OnStateChange(chain int, from, to domain.ChainState)
	OnDraw(chain int, draw domain.Draw)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	StateChange func(chain int, from, to domain.ChainState)
	Draw        func(chain int, draw domain.Draw)
}

func (o ObserverFuncs) OnStateChange(chain int, from, to domain.ChainState) {
	if o.StateChange != nil {
		o.StateChange(chain, from, to)
	}
}

func (o ObserverFuncs) OnDraw(chain int, draw domain.Draw) {
	if o.Draw != nil {
		o.Draw(chain, draw)
	}
}

type observers []Observer

func (obs observers) OnStateChange(chain int, from, to domain.ChainState) {
	for _, o := range obs {
		o.OnStateChange(chain, from, to)
	}
}

func (obs observers) OnDraw(chain int, draw domain.Draw) {
	for _, o := range obs {
		o.OnDraw(chain, draw)
	}
}

// metricsObserver counts sampling iterations
type metricsObserver struct {
	algorithm string
}

func (m metricsObserver) OnStateChange(int, domain.ChainState, domain.ChainState) {}

func (m metricsObserver) OnDraw(int, domain.Draw) {
	metrics.RecordIteration(m.algorithm, string(domain.ChainStateSampling))
}
