// Package reactor implements the reference reactivity-feedback models: a
// centred linear model with an analytic derivative and a temperature
// re-calculation model that is only ever used as a black box.
//
// Both take two coefficients, fuel then coolant, and two input columns,
// fuel temperature then coolant temperature.
package reactor

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Reference temperatures (K) the linear model is centred on
const (
	ReferenceFuelTemperature    = 550.0
	ReferenceCoolantTemperature = 315.0
)

// Model kinds
const (
	KindLinear = "linear"
	KindRecalc = "recalc"
)

// Default column names used by generated datasets
const (
	ColumnTime       = "time"
	ColumnFuel       = "fuel_temperature"
	ColumnCoolant    = "coolant_temperature"
	ColumnObserved   = "observed_reactivity"
	ColumnReactivity = "reactivity"
)

// Model is a two-coefficient reactivity model.
type Model struct {
	Kind    string
	Predict func(a, b float64, fuel, coolant []float64) []float64
	// Jacobian is nil for black-box models.
	Jacobian func(a, b float64, fuel, coolant []float64) [][]float64
	// TrueA and TrueB are the coefficients used for synthetic data.
	TrueA, TrueB float64
	// NoiseSigma is the observation noise used for synthetic data.
	NoiseSigma float64
}

var models = map[string]Model{
	KindLinear: {
		Kind:       KindLinear,
		Predict:    Linear,
		Jacobian:   LinearJacobian,
		TrueA:      0.05,
		TrueB:      -0.02,
		NoiseSigma: 0.5,
	},
	KindRecalc: {
		Kind:       KindRecalc,
		Predict:    Recalc,
		TrueA:      -2.0,
		TrueB:      -1.5,
		NoiseSigma: 10,
	},
}

// Lookup returns a registered model
func Lookup(kind string) (Model, error) {
	m, ok := models[kind]
	if !ok {
		return Model{}, apperrors.Configuration("unknown reactor model " + kind).
			WithDetail("available", strings.Join(Kinds(), ","))
	}
	return m, nil
}

// Kinds lists the registered model kinds
func Kinds() []string {
	kinds := make([]string, 0, len(models))
	for k := range models {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Linear is reactivity = a*(Tf - 550) + b*(Tc - 315).
func Linear(a, b float64, fuel, coolant []float64) []float64 {
	out := make([]float64, len(fuel))
	for i := range fuel {
		out[i] = a*(fuel[i]-ReferenceFuelTemperature) + b*(coolant[i]-ReferenceCoolantTemperature)
	}
	return out
}

// LinearJacobian returns d(reactivity_i)/d(a, b).
func LinearJacobian(_, _ float64, fuel, coolant []float64) [][]float64 {
	out := make([][]float64, len(fuel))
	for i := range fuel {
		out[i] = []float64{fuel[i] - ReferenceFuelTemperature, coolant[i] - ReferenceCoolantTemperature}
	}
	return out
}

// Recalc rescales both temperatures by a coefficient-dependent factor before
// applying the feedback coefficients. At a = -2, b = -1.5 it reduces to
// a*Tf + b*Tc.
func Recalc(a, b float64, fuel, coolant []float64) []float64 {
	out := make([]float64, len(fuel))
	for i := range fuel {
		newFuel := fuel[i] * (1 + (a+2)*0.01)
		newCoolant := coolant[i] * (1 + (b+1.5)*0.01)
		out[i] = a*newFuel + b*newCoolant
	}
	return out
}

// Binding names the two input columns a model reads.
type Binding struct {
	Fuel    string
	Coolant string
}

// DefaultBinding reads the generated dataset columns
var DefaultBinding = Binding{Fuel: ColumnFuel, Coolant: ColumnCoolant}

func (b Binding) columns(inputs *domain.ExogenousInputs) ([]float64, []float64, error) {
	fuel, ok := inputs.Column(b.Fuel)
	if !ok {
		return nil, nil, apperrors.Configuration("missing input column " + b.Fuel)
	}
	coolant, ok := inputs.Column(b.Coolant)
	if !ok {
		return nil, nil, apperrors.Configuration("missing input column " + b.Coolant)
	}
	return fuel, coolant, nil
}

func coefficients(params domain.ParameterVector) (float64, float64, error) {
	if params.Len() != 2 {
		return 0, 0, apperrors.Configuration(fmt.Sprintf("reactor models take 2 coefficients, got %d", params.Len()))
	}
	return params.Values[0], params.Values[1], nil
}

// Forward adapts the model to an in-process forward function.
func (m Model) Forward(b Binding) evaluator.ForwardFunc {
	return func(_ context.Context, params domain.ParameterVector, inputs *domain.ExogenousInputs) (domain.PredictedVector, error) {
		a, c, err := coefficients(params)
		if err != nil {
			return nil, err
		}
		fuel, coolant, err := b.columns(inputs)
		if err != nil {
			return nil, err
		}
		return m.Predict(a, c, fuel, coolant), nil
	}
}

// Evaluator binds the model to inputs. Models with a Jacobian produce a
// gradient-capable evaluator.
func (m Model) Evaluator(name string, b Binding, inputs *domain.ExogenousInputs) (evaluator.Evaluator, error) {
	if _, _, err := b.columns(inputs); err != nil {
		return nil, err
	}
	if name == "" {
		name = m.Kind
	}
	if m.Jacobian == nil {
		return evaluator.NewFunc(name, m.Forward(b), inputs, inputs.Rows()), nil
	}
	jac := func(_ context.Context, params domain.ParameterVector, inputs *domain.ExogenousInputs) ([][]float64, error) {
		a, c, err := coefficients(params)
		if err != nil {
			return nil, err
		}
		fuel, coolant, err := b.columns(inputs)
		if err != nil {
			return nil, err
		}
		return m.Jacobian(a, c, fuel, coolant), nil
	}
	return evaluator.NewDifferentiableFunc(name, m.Forward(b), jac, inputs, inputs.Rows()), nil
}
