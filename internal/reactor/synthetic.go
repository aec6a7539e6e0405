package reactor

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ynkmn/reactoruq/internal/dataset"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// SyntheticConfig controls synthetic data generation.
type SyntheticConfig struct {
	Kind   string
	Points int
	Seed   uint64
	// NoiseSigma overrides the model's default observation noise when > 0.
	NoiseSigma float64
	// Noiseless skips observation noise entirely.
	Noiseless bool
}

// FuelTransient is the fuel heat-up curve 300 + 50(1 - e^{-t/20}).
func FuelTransient(t float64) float64 {
	return 300 + 50*(1-math.Exp(-t/20))
}

// CoolantTransient is the coolant heat-up curve 290 + 30(1 - e^{-t/30}).
func CoolantTransient(t float64) float64 {
	return 290 + 30*(1-math.Exp(-t/30))
}

// Synthesize generates a dataset from the model's true coefficients.
//
// The recalc model uses a heat-up transient sampled on a uniform time grid
// over [0, 100]. The linear model sweeps fuel temperature over [300, 800] and
// coolant temperature over [280, 350] with N(0, 10) jitter on the coolant.
func Synthesize(cfg SyntheticConfig) (*dataset.Table, error) {
	m, err := Lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if cfg.Points < 2 {
		return nil, apperrors.Configuration("synthetic dataset needs at least 2 points")
	}
	sigma := m.NoiseSigma
	if cfg.NoiseSigma > 0 {
		sigma = cfg.NoiseSigma
	}

	src := rand.NewPCG(cfg.Seed, 0x5eed)
	n := cfg.Points
	fuel := make([]float64, n)
	coolant := make([]float64, n)

	columns := []string{ColumnFuel, ColumnCoolant, ColumnObserved}
	data := map[string][]float64{}

	switch m.Kind {
	case KindRecalc:
		t := floats.Span(make([]float64, n), 0, 100)
		for i, ti := range t {
			fuel[i] = FuelTransient(ti)
			coolant[i] = CoolantTransient(ti)
		}
		columns = append([]string{ColumnTime}, columns...)
		data[ColumnTime] = t
	default:
		floats.Span(fuel, 300, 800)
		floats.Span(coolant, 280, 350)
		jitter := distuv.Normal{Mu: 0, Sigma: 10, Src: src}
		for i := range coolant {
			coolant[i] += jitter.Rand()
		}
	}

	observed := m.Predict(m.TrueA, m.TrueB, fuel, coolant)
	if !cfg.Noiseless {
		noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: src}
		for i := range observed {
			observed[i] += noise.Rand()
		}
	}

	data[ColumnFuel] = fuel
	data[ColumnCoolant] = coolant
	data[ColumnObserved] = observed
	return dataset.NewTable(columns, data)
}
