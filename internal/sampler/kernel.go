package sampler

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/ynkmn/reactoruq/internal/model"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Target is the density a chain explores.
type Target interface {
	Names() []string
	HasGradient() bool
	// Scales gives a typical spread per parameter.
	Scales() []float64
	// Initial returns an explicit starting point if one is configured.
	Initial() ([]float64, bool)
	SamplePrior(src rand.Source) []float64
	LogDensity(ctx context.Context, theta []float64) model.Density
	LogDensityGradient(ctx context.Context, theta []float64) model.Density
}

// State is the current position of a chain.
type State struct {
	Theta   []float64
	Density model.Density
}

// Transition is the outcome of one kernel step.
type Transition struct {
	State    State
	Accepted bool
	// AcceptProb is the Metropolis acceptance probability, 0 when the
	// proposal could not be scored.
	AcceptProb float64
	// Evaluations counts forward-model calls made by the step.
	Evaluations int
	// Err is the evaluation error that caused a rejection, if any.
	Err error
}

// Kernel proposes and accepts or rejects moves. A kernel belongs to one
// chain and is not safe for concurrent use.
type Kernel interface {
	// Init scores the starting point the way Step will need it.
	Init(ctx context.Context, theta []float64) model.Density
	Step(ctx context.Context, cur State, rng *rand.Rand) Transition
	// Adapt tunes the kernel after a warmup step.
	Adapt(t Transition)
	// EndWarmup freezes the tuned parameters.
	EndWarmup()
	// StepSize is the proposal scale or leapfrog step size in use.
	StepSize() float64
}

// Algorithm describes a registered sampling strategy.
type Algorithm struct {
	Name             string
	RequiresGradient bool
	newKernel        func(t Target, cfg Config) Kernel
}

var algorithms = map[string]Algorithm{
	AlgorithmMetropolis: {
		Name:      AlgorithmMetropolis,
		newKernel: newMetropolis,
	},
	AlgorithmHMC: {
		Name:             AlgorithmHMC,
		RequiresGradient: true,
		newKernel:        newHMC,
	},
}

// LookupAlgorithm returns a registered algorithm
func LookupAlgorithm(name string) (Algorithm, error) {
	a, ok := algorithms[name]
	if !ok {
		return Algorithm{}, apperrors.Configuration("unknown sampling algorithm " + name).
			WithDetail("available", strings.Join(Algorithms(), ","))
	}
	return a, nil
}

// Algorithms lists registered algorithm names
func Algorithms() []string {
	names := make([]string, 0, len(algorithms))
	for n := range algorithms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
