package domain

import (
	"fmt"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// ParameterVector is an ordered set of named scalar parameters.
// The order is the order the forward model expects them in.
type ParameterVector struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

// NewParameterVector builds a vector, rejecting mismatched or duplicate names.
func NewParameterVector(names []string, values []float64) (ParameterVector, error) {
	if len(names) != len(values) {
		return ParameterVector{}, apperrors.Configuration(
			fmt.Sprintf("parameter vector has %d names but %d values", len(names), len(values)))
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return ParameterVector{}, apperrors.Configuration("duplicate parameter name " + n)
		}
		seen[n] = struct{}{}
	}
	return ParameterVector{
		Names:  append([]string(nil), names...),
		Values: append([]float64(nil), values...),
	}, nil
}

// Len returns the number of parameters
func (p ParameterVector) Len() int {
	return len(p.Values)
}

// Get returns the value of a named parameter
func (p ParameterVector) Get(name string) (float64, bool) {
	for i, n := range p.Names {
		if n == name {
			return p.Values[i], true
		}
	}
	return 0, false
}

// Clone returns a deep copy. Names are shared since they are never mutated.
func (p ParameterVector) Clone() ParameterVector {
	return ParameterVector{Names: p.Names, Values: append([]float64(nil), p.Values...)}
}

// WithValues returns a vector with the same names and a copy of values.
func (p ParameterVector) WithValues(values []float64) ParameterVector {
	return ParameterVector{Names: p.Names, Values: append([]float64(nil), values...)}
}

// ObservedVector holds the measured data. Treated as immutable.
type ObservedVector []float64

// PredictedVector is the output of one forward-model evaluation.
type PredictedVector []float64

// ExogenousInputs are fixed, named input columns shared by every evaluation.
type ExogenousInputs struct {
	columns []string
	data    map[string][]float64
	rows    int
}

// NewExogenousInputs copies the given columns. All columns must have the same length.
func NewExogenousInputs(columns []string, data map[string][]float64) (*ExogenousInputs, error) {
	e := &ExogenousInputs{
		columns: append([]string(nil), columns...),
		data:    make(map[string][]float64, len(columns)),
		rows:    -1,
	}
	for _, c := range columns {
		col, ok := data[c]
		if !ok {
			return nil, apperrors.Configuration("exogenous column " + c + " not provided")
		}
		if e.rows >= 0 && len(col) != e.rows {
			return nil, apperrors.Configuration(
				fmt.Sprintf("exogenous column %s has %d rows, expected %d", c, len(col), e.rows))
		}
		e.rows = len(col)
		e.data[c] = append([]float64(nil), col...)
	}
	if e.rows < 0 {
		e.rows = 0
	}
	return e, nil
}

// Columns returns the column names in declaration order
func (e *ExogenousInputs) Columns() []string {
	if e == nil {
		return nil
	}
	return e.columns
}

// Column returns a named column. The slice must not be modified.
func (e *ExogenousInputs) Column(name string) ([]float64, bool) {
	if e == nil {
		return nil, false
	}
	col, ok := e.data[name]
	return col, ok
}

// Rows returns the number of rows shared by all columns
func (e *ExogenousInputs) Rows() int {
	if e == nil {
		return 0
	}
	return e.rows
}
