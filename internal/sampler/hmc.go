package sampler

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/ynkmn/reactoruq/internal/model"
)

// Dual averaging constants
const (
	daGamma = 0.05
	daT0    = 10.0
	daKappa = 0.75
)

// hmc is a fixed-length leapfrog Hamiltonian Monte Carlo kernel with a
// diagonal metric taken from the prior scales. The step size is adapted by
// dual averaging toward the target acceptance during warmup.
type hmc struct {
	target Target
	// invMass is the diagonal inverse metric.
	invMass []float64
	steps   int
	eps     float64

	targetAccept float64
	mu           float64
	hBar         float64
	logEpsBar    float64
	m            int
	frozen       bool
}

func newHMC(t Target, cfg Config) Kernel {
	scales := t.Scales()
	inv := make([]float64, len(scales))
	for i, s := range scales {
		inv[i] = s * s
	}
	eps := 0.1 * cfg.InitialScale
	return &hmc{
		target:       t,
		invMass:      inv,
		steps:        cfg.LeapfrogSteps,
		eps:          eps,
		targetAccept: cfg.TargetAccept,
		mu:           math.Log(10 * eps),
		logEpsBar:    math.Log(eps),
	}
}

func (k *hmc) Init(ctx context.Context, theta []float64) model.Density {
	return k.target.LogDensityGradient(ctx, theta)
}

func (k *hmc) kinetic(p []float64) float64 {
	var e float64
	for i, pi := range p {
		e += 0.5 * k.invMass[i] * pi * pi
	}
	return e
}

func (k *hmc) Step(ctx context.Context, cur State, rng *rand.Rand) Transition {
	n := len(cur.Theta)
	p := make([]float64, n)
	for i := range p {
		p[i] = rng.NormFloat64() / math.Sqrt(k.invMass[i])
	}
	h0 := -cur.Density.LogPosterior + k.kinetic(p)

	x := append([]float64(nil), cur.Theta...)
	grad := cur.Density.Grad
	var d model.Density
	evals := 0

	for i := range p {
		p[i] += 0.5 * k.eps * grad[i]
	}
	for step := 0; step < k.steps; step++ {
		for i := range x {
			x[i] += k.eps * k.invMass[i] * p[i]
		}
		d = k.target.LogDensityGradient(ctx, x)
		if d.OutOfSupport() {
			return Transition{State: cur, Evaluations: evals}
		}
		evals++
		if d.Err != nil {
			return Transition{State: cur, Evaluations: evals, Err: d.Err}
		}
		grad = d.Grad
		scale := k.eps
		if step == k.steps-1 {
			scale = 0.5 * k.eps
		}
		for i := range p {
			p[i] += scale * grad[i]
		}
	}

	h1 := -d.LogPosterior + k.kinetic(p)
	logRatio := h0 - h1
	prob := math.Min(1, math.Exp(logRatio))
	if math.IsNaN(prob) {
		prob = 0
	}
	if math.Log(rng.Float64()) < logRatio {
		return Transition{State: State{Theta: x, Density: d}, Accepted: true, AcceptProb: prob, Evaluations: evals}
	}
	return Transition{State: cur, AcceptProb: prob, Evaluations: evals}
}

func (k *hmc) Adapt(t Transition) {
	if k.frozen {
		return
	}
	k.m++
	m := float64(k.m)
	w := 1 / (m + daT0)
	k.hBar = (1-w)*k.hBar + w*(k.targetAccept-t.AcceptProb)
	logEps := k.mu - math.Sqrt(m)/daGamma*k.hBar
	eta := math.Pow(m, -daKappa)
	k.logEpsBar = eta*logEps + (1-eta)*k.logEpsBar
	k.eps = math.Exp(logEps)
}

func (k *hmc) EndWarmup() {
	if !k.frozen && k.m > 0 {
		k.eps = math.Exp(k.logEpsBar)
	}
	k.frozen = true
}

func (k *hmc) StepSize() float64 { return k.eps }
