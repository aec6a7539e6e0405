package domain

import "errors"

// ErrTraceSealed is returned when appending to a finished trace.
var ErrTraceSealed = errors.New("trace is sealed")

// Draw is one retained state of a chain.
type Draw struct {
	Iteration        int       `json:"iteration"`
	Values           []float64 `json:"values"`
	LogLikelihood    float64   `json:"logLikelihood"`
	LogPosterior     float64   `json:"logPosterior"`
	Accepted         bool      `json:"accepted"`
	EvaluationFailed bool      `json:"evaluationFailed"`
}

// Trace is the append-only sequence of draws of one chain.
// A trace is owned by a single chain goroutine until sealed.
type Trace struct {
	Names  []string `json:"names"`
	Draws  []Draw   `json:"draws"`
	sealed bool
}

// NewTrace creates an empty trace with room for capacity draws.
func NewTrace(names []string, capacity int) *Trace {
	return &Trace{
		Names: append([]string(nil), names...),
		Draws: make([]Draw, 0, capacity),
	}
}

// Append adds a draw. The values slice is copied.
func (t *Trace) Append(d Draw) error {
	if t.sealed {
		return ErrTraceSealed
	}
	d.Values = append([]float64(nil), d.Values...)
	t.Draws = append(t.Draws, d)
	return nil
}

// Seal marks the trace as complete; later appends fail.
func (t *Trace) Seal() {
	t.sealed = true
}

// Sealed reports whether the trace has been sealed
func (t *Trace) Sealed() bool {
	return t.sealed
}

// Len returns the number of draws
func (t *Trace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Draws)
}

// Column returns the series of one parameter across all draws.
func (t *Trace) Column(name string) ([]float64, bool) {
	idx := -1
	for i, n := range t.Names {
		if n == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}
	out := make([]float64, len(t.Draws))
	for i, d := range t.Draws {
		out[i] = d.Values[idx]
	}
	return out, true
}

// AcceptanceRate returns the fraction of accepted draws.
func (t *Trace) AcceptanceRate() float64 {
	if t.Len() == 0 {
		return 0
	}
	n := 0
	for _, d := range t.Draws {
		if d.Accepted {
			n++
		}
	}
	return float64(n) / float64(len(t.Draws))
}
