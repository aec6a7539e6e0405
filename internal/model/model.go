// Package model binds priors, observed data, a noise model and a forward
// model into the log-posterior density the sampler explores.
package model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/likelihood"
	"github.com/ynkmn/reactoruq/internal/prior"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Parameter is a sampled parameter with its prior.
type Parameter struct {
	Name    string
	Prior   prior.Prior
	Initial *float64
}

// Config assembles a model programmatically.
type Config struct {
	Name string
	// Parameters are passed to the forward model in this order.
	Parameters []Parameter
	// NoiseScale makes the noise scale a sampled parameter. When nil,
	// FixedScale is used.
	NoiseScale *Parameter
	FixedScale float64
	Likelihood *likelihood.Adapter
}

// Density is the log-posterior at one point. Err is set when the forward
// model failed; LogLikelihood is then the penalty value.
type Density struct {
	LogPosterior  float64
	LogLikelihood float64
	// Grad is d LogPosterior / d theta, present only for gradient requests
	// that succeeded.
	Grad []float64
	Err  error
}

// OutOfSupport reports whether the point has zero prior mass
func (d Density) OutOfSupport() bool {
	return math.IsInf(d.LogPosterior, -1)
}

// Model is the posterior over the sampled parameters. The sampled vector is
// the forward parameters followed by the noise scale when it is sampled.
type Model struct {
	name       string
	names      []string
	forward    []string
	priors     []prior.Prior
	initial    []*float64
	scaleIndex int
	fixedScale float64
	lik        *likelihood.Adapter
}

// New validates cfg and builds a model.
func New(cfg Config) (*Model, error) {
	if cfg.Likelihood == nil {
		return nil, apperrors.Configuration("model requires a likelihood")
	}
	if len(cfg.Parameters) == 0 {
		return nil, apperrors.Configuration("model requires at least one parameter")
	}

	m := &Model{name: cfg.Name, lik: cfg.Likelihood, scaleIndex: -1}
	params := cfg.Parameters
	if cfg.NoiseScale != nil {
		params = append(append([]Parameter(nil), params...), *cfg.NoiseScale)
	} else if !(cfg.FixedScale > 0) || math.IsInf(cfg.FixedScale, 0) {
		return nil, apperrors.Configuration("fixed noise scale must be positive and finite")
	}

	seen := make(map[string]bool, len(params))
	for i, p := range params {
		if p.Name == "" {
			return nil, apperrors.Configuration("parameter name is required")
		}
		if seen[p.Name] {
			return nil, apperrors.Configuration("duplicate parameter " + p.Name)
		}
		seen[p.Name] = true
		if p.Prior == nil {
			return nil, apperrors.Configuration("parameter " + p.Name + " has no prior")
		}
		if p.Initial != nil && math.IsInf(p.Prior.LogProb(*p.Initial), -1) {
			return nil, apperrors.Configuration("initial value of " + p.Name + " is outside its prior support")
		}
		m.names = append(m.names, p.Name)
		m.priors = append(m.priors, p.Prior)
		m.initial = append(m.initial, p.Initial)
		if i < len(cfg.Parameters) {
			m.forward = append(m.forward, p.Name)
		}
	}

	if cfg.NoiseScale != nil {
		if lo, _ := cfg.NoiseScale.Prior.Support(); lo < 0 {
			return nil, apperrors.Configuration("noise scale prior must be supported on positive values only")
		}
		if init := cfg.NoiseScale.Initial; init != nil && !(*init > 0) {
			return nil, apperrors.Configuration("initial noise scale must be positive")
		}
		m.scaleIndex = len(m.names) - 1
	} else {
		m.fixedScale = cfg.FixedScale
	}
	return m, nil
}

// Name returns the model name
func (m *Model) Name() string { return m.name }

// Names returns the sampled parameter names in vector order.
func (m *Model) Names() []string { return m.names }

// ForwardNames returns the names passed to the forward model.
func (m *Model) ForwardNames() []string { return m.forward }

// Priors returns the priors in vector order
func (m *Model) Priors() []prior.Prior { return m.priors }

// Observed returns the observed data. It must not be modified.
func (m *Model) Observed() domain.ObservedVector { return m.lik.Observed() }

// Likelihood returns the likelihood adapter
func (m *Model) Likelihood() *likelihood.Adapter { return m.lik }

// HasGradient reports whether the posterior is differentiable.
func (m *Model) HasGradient() bool { return m.lik.HasGradient() }

// Scales returns a typical spread per parameter, used to size proposals.
func (m *Model) Scales() []float64 {
	out := make([]float64, len(m.priors))
	for i, p := range m.priors {
		out[i] = p.Scale()
	}
	return out
}

// Initial returns the configured starting point when every parameter has one.
func (m *Model) Initial() ([]float64, bool) {
	out := make([]float64, len(m.initial))
	for i, v := range m.initial {
		if v == nil {
			return nil, false
		}
		out[i] = *v
	}
	return out, true
}

// SamplePrior draws a point from the prior. Parameters with a configured
// initial value keep it.
func (m *Model) SamplePrior(src rand.Source) []float64 {
	out := make([]float64, len(m.priors))
	for i, p := range m.priors {
		if m.initial[i] != nil {
			out[i] = *m.initial[i]
			continue
		}
		out[i] = p.Rand(src)
	}
	return out
}

// LogPrior sums the prior log-densities. Non-finite coordinates have no mass.
func (m *Model) LogPrior(theta []float64) float64 {
	var lp float64
	for i, p := range m.priors {
		if math.IsNaN(theta[i]) || math.IsInf(theta[i], 0) {
			return math.Inf(-1)
		}
		lp += p.LogProb(theta[i])
		if math.IsInf(lp, -1) {
			return lp
		}
	}
	return lp
}

func (m *Model) split(theta []float64) (domain.ParameterVector, float64) {
	n := len(m.forward)
	params := domain.ParameterVector{Names: m.forward, Values: append([]float64(nil), theta[:n]...)}
	if m.scaleIndex >= 0 {
		return params, theta[m.scaleIndex]
	}
	return params, m.fixedScale
}

// Predict runs the forward model at theta, a point in Names order. The noise
// scale, if sampled, is ignored.
func (m *Model) Predict(ctx context.Context, theta []float64) (domain.PredictedVector, error) {
	if len(theta) != len(m.names) {
		return nil, apperrors.Validation(fmt.Sprintf("model %s has %d parameters, got %d values", m.name, len(m.names), len(theta)))
	}
	params, _ := m.split(theta)
	return m.lik.Predict(ctx, params)
}

// LogDensity evaluates the log-posterior. Points outside the prior support
// return -Inf without running the forward model.
func (m *Model) LogDensity(ctx context.Context, theta []float64) Density {
	lp := m.LogPrior(theta)
	if math.IsInf(lp, -1) {
		return Density{LogPosterior: lp, LogLikelihood: math.Inf(-1)}
	}
	params, scale := m.split(theta)
	res := m.lik.Evaluate(ctx, params, scale)
	return Density{
		LogPosterior:  lp + res.LogLikelihood,
		LogLikelihood: res.LogLikelihood,
		Err:           res.Err,
	}
}

// LogDensityGradient evaluates the log-posterior and its gradient. It is a
// configuration error when the likelihood has no gradient.
func (m *Model) LogDensityGradient(ctx context.Context, theta []float64) Density {
	if !m.lik.HasGradient() {
		return Density{
			LogPosterior:  likelihood.PenaltyLogLikelihood,
			LogLikelihood: likelihood.PenaltyLogLikelihood,
			Err:           apperrors.Configuration("model " + m.name + " has no gradient"),
		}
	}
	lp := m.LogPrior(theta)
	if math.IsInf(lp, -1) {
		return Density{LogPosterior: lp, LogLikelihood: math.Inf(-1)}
	}

	params, scale := m.split(theta)
	g, err := m.lik.Gradient(ctx, params, scale)
	if err != nil {
		return Density{LogPosterior: lp + g.LogLikelihood, LogLikelihood: g.LogLikelihood, Err: err}
	}

	grad := make([]float64, len(theta))
	for i, p := range m.priors {
		grad[i] = p.Grad(theta[i])
	}
	for j, d := range g.DParams {
		grad[j] += d
	}
	if m.scaleIndex >= 0 {
		grad[m.scaleIndex] += g.DScale
	}
	return Density{LogPosterior: lp + g.LogLikelihood, LogLikelihood: g.LogLikelihood, Grad: grad}
}
