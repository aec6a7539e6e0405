package likelihood

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// NoiseModel is the observation error distribution centred on the prediction.
type NoiseModel interface {
	Name() string
	// LogDensity returns the joint log-density of observed given predicted.
	LogDensity(observed, predicted []float64, scale float64) float64
	// Gradient returns d/d(predicted_i) and d/d(scale) of LogDensity.
	Gradient(observed, predicted []float64, scale float64) (dPredicted []float64, dScale float64)
}

// Gaussian is independent normal noise with standard deviation scale.
type Gaussian struct{}

// Name returns "gaussian"
func (Gaussian) Name() string { return "gaussian" }

// LogDensity sums the normal log-pdf over all observations.
func (Gaussian) LogDensity(observed, predicted []float64, scale float64) float64 {
	var ll float64
	for i, y := range observed {
		ll += distuv.Normal{Mu: predicted[i], Sigma: scale}.LogProb(y)
	}
	return ll
}

// Gradient of the normal log-pdf
func (Gaussian) Gradient(observed, predicted []float64, scale float64) ([]float64, float64) {
	d := make([]float64, len(observed))
	s2 := scale * scale
	var dScale float64
	for i, y := range observed {
		r := y - predicted[i]
		d[i] = r / s2
		dScale += -1/scale + r*r/(s2*scale)
	}
	return d, dScale
}

// Laplace is independent double-exponential noise with scale b, for data
// with heavy-tailed measurement error.
type Laplace struct{}

// Name returns "laplace"
func (Laplace) Name() string { return "laplace" }

// LogDensity sums the Laplace log-pdf over all observations.
func (Laplace) LogDensity(observed, predicted []float64, scale float64) float64 {
	var ll float64
	for i, y := range observed {
		ll += distuv.Laplace{Mu: predicted[i], Scale: scale}.LogProb(y)
	}
	return ll
}

// Gradient of the Laplace log-pdf. The derivative at a zero residual is taken as 0.
func (Laplace) Gradient(observed, predicted []float64, scale float64) ([]float64, float64) {
	d := make([]float64, len(observed))
	var dScale float64
	for i, y := range observed {
		r := y - predicted[i]
		switch {
		case r > 0:
			d[i] = 1 / scale
		case r < 0:
			d[i] = -1 / scale
		}
		dScale += -1/scale + math.Abs(r)/(scale*scale)
	}
	return d, dScale
}

var noiseModels = map[string]NoiseModel{
	Gaussian{}.Name(): Gaussian{},
	Laplace{}.Name():  Laplace{},
}

// LookupNoise returns a registered noise model. An empty name selects gaussian.
func LookupNoise(name string) (NoiseModel, error) {
	if name == "" {
		return Gaussian{}, nil
	}
	m, ok := noiseModels[name]
	if !ok {
		return nil, apperrors.Configuration("unknown noise model " + name).
			WithDetail("available", strings.Join(NoiseModels(), ","))
	}
	return m, nil
}

// NoiseModels lists registered noise model names
func NoiseModels() []string {
	names := make([]string, 0, len(noiseModels))
	for n := range noiseModels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
