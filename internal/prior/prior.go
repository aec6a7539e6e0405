// Package prior holds the closed set of prior distributions a model
// parameter may declare.
package prior

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Prior kinds
const (
	KindNormal     = "normal"
	KindUniform    = "uniform"
	KindHalfNormal = "half_normal"
)

// Prior is a univariate prior density.
type Prior interface {
	Kind() string
	// LogProb returns the log-density, -Inf outside the support.
	LogProb(x float64) float64
	// Grad returns d LogProb / dx inside the support.
	Grad(x float64) float64
	// Rand draws from the prior using src.
	Rand(src rand.Source) float64
	// Support returns the closed interval holding all the mass.
	Support() (lo, hi float64)
	// Scale is a typical spread used to size proposals.
	Scale() float64
}

// Spec is the declarative form of a prior as written in a model file.
type Spec struct {
	Kind  string  `yaml:"kind" json:"kind" validate:"required"`
	Mu    float64 `yaml:"mu,omitempty" json:"mu,omitempty" validate:"finite"`
	Sigma float64 `yaml:"sigma,omitempty" json:"sigma,omitempty" validate:"finite"`
	Lower float64 `yaml:"lower,omitempty" json:"lower,omitempty" validate:"finite"`
	Upper float64 `yaml:"upper,omitempty" json:"upper,omitempty" validate:"finite"`
}

type builder func(Spec) (Prior, error)

var registry = map[string]builder{
	KindNormal: func(s Spec) (Prior, error) {
		if s.Sigma <= 0 {
			return nil, apperrors.Configuration("normal prior requires sigma > 0")
		}
		return Normal{Mu: s.Mu, Sigma: s.Sigma}, nil
	},
	KindUniform: func(s Spec) (Prior, error) {
		if !(s.Upper > s.Lower) {
			return nil, apperrors.Configuration(fmt.Sprintf("uniform prior requires lower < upper, got [%v, %v]", s.Lower, s.Upper))
		}
		return Uniform{Lower: s.Lower, Upper: s.Upper}, nil
	},
	KindHalfNormal: func(s Spec) (Prior, error) {
		if s.Sigma <= 0 {
			return nil, apperrors.Configuration("half_normal prior requires sigma > 0")
		}
		return HalfNormal{Sigma: s.Sigma}, nil
	},
}

// Build resolves a spec against the registry.
func (s Spec) Build() (Prior, error) {
	b, ok := registry[s.Kind]
	if !ok {
		return nil, apperrors.Configuration("unknown prior kind " + s.Kind).
			WithDetail("available", strings.Join(Kinds(), ","))
	}
	return b(s)
}

// Kinds lists the registered prior kinds
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Normal is a Gaussian prior
type Normal struct {
	Mu, Sigma float64
}

func (p Normal) Kind() string { return KindNormal }

func (p Normal) LogProb(x float64) float64 {
	return distuv.Normal{Mu: p.Mu, Sigma: p.Sigma}.LogProb(x)
}

func (p Normal) Grad(x float64) float64 {
	return -(x - p.Mu) / (p.Sigma * p.Sigma)
}

func (p Normal) Rand(src rand.Source) float64 {
	return distuv.Normal{Mu: p.Mu, Sigma: p.Sigma, Src: src}.Rand()
}

func (p Normal) Support() (float64, float64) { return math.Inf(-1), math.Inf(1) }

func (p Normal) Scale() float64 { return p.Sigma }

// Uniform is a flat prior on [Lower, Upper]
type Uniform struct {
	Lower, Upper float64
}

func (p Uniform) Kind() string { return KindUniform }

func (p Uniform) LogProb(x float64) float64 {
	return distuv.Uniform{Min: p.Lower, Max: p.Upper}.LogProb(x)
}

func (p Uniform) Grad(float64) float64 { return 0 }

func (p Uniform) Rand(src rand.Source) float64 {
	return distuv.Uniform{Min: p.Lower, Max: p.Upper, Src: src}.Rand()
}

func (p Uniform) Support() (float64, float64) { return p.Lower, p.Upper }

func (p Uniform) Scale() float64 { return (p.Upper - p.Lower) / math.Sqrt(12) }

// HalfNormal is a zero-centred normal folded onto [0, +Inf), used for
// noise scales.
type HalfNormal struct {
	Sigma float64
}

func (p HalfNormal) Kind() string { return KindHalfNormal }

func (p HalfNormal) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	return math.Ln2 + distuv.Normal{Mu: 0, Sigma: p.Sigma}.LogProb(x)
}

func (p HalfNormal) Grad(x float64) float64 {
	return -x / (p.Sigma * p.Sigma)
}

func (p HalfNormal) Rand(src rand.Source) float64 {
	return math.Abs(distuv.Normal{Mu: 0, Sigma: p.Sigma, Src: src}.Rand())
}

func (p HalfNormal) Support() (float64, float64) { return 0, math.Inf(1) }

func (p HalfNormal) Scale() float64 { return p.Sigma * math.Sqrt(1-2/math.Pi) }
