package sampler

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/ynkmn/reactoruq/internal/model"
)

// metropolis is a gradient-free random-walk kernel with a joint Gaussian
// proposal. The global scale is tuned from the acceptance rate of each
// warmup window.
type metropolis struct {
	target   Target
	base     []float64
	scale    float64
	interval int

	window   int
	accepted int
	frozen   bool
}

func newMetropolis(t Target, cfg Config) Kernel {
	return &metropolis{
		target:   t,
		base:     t.Scales(),
		scale:    cfg.InitialScale,
		interval: cfg.TuneInterval,
	}
}

func (k *metropolis) Init(ctx context.Context, theta []float64) model.Density {
	return k.target.LogDensity(ctx, theta)
}

func (k *metropolis) Step(ctx context.Context, cur State, rng *rand.Rand) Transition {
	proposal := make([]float64, len(cur.Theta))
	for i, x := range cur.Theta {
		proposal[i] = x + k.scale*k.base[i]*rng.NormFloat64()
	}

	d := k.target.LogDensity(ctx, proposal)
	if d.OutOfSupport() {
		return Transition{State: cur}
	}
	if d.Err != nil {
		return Transition{State: cur, Evaluations: 1, Err: d.Err}
	}

	logRatio := d.LogPosterior - cur.Density.LogPosterior
	prob := math.Min(1, math.Exp(logRatio))
	if math.IsNaN(prob) {
		prob = 0
	}
	if math.Log(rng.Float64()) < logRatio {
		return Transition{State: State{Theta: proposal, Density: d}, Accepted: true, AcceptProb: prob, Evaluations: 1}
	}
	return Transition{State: cur, AcceptProb: prob, Evaluations: 1}
}

func (k *metropolis) Adapt(t Transition) {
	if k.frozen {
		return
	}
	k.window++
	if t.Accepted {
		k.accepted++
	}
	if k.window < k.interval {
		return
	}
	k.scale = tuneScale(k.scale, float64(k.accepted)/float64(k.window))
	k.window, k.accepted = 0, 0
}

func (k *metropolis) EndWarmup() { k.frozen = true }

func (k *metropolis) StepSize() float64 { return k.scale }

// tuneScale adjusts the proposal scale from a window acceptance rate.
func tuneScale(scale, rate float64) float64 {
	switch {
	case rate < 0.001:
		return scale * 0.1
	case rate < 0.05:
		return scale * 0.5
	case rate < 0.2:
		return scale * 0.9
	case rate > 0.95:
		return scale * 10
	case rate > 0.75:
		return scale * 2
	case rate > 0.5:
		return scale * 1.1
	}
	return scale
}
