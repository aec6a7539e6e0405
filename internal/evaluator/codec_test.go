package evaluator

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

func TestWriteParameters(t *testing.T) {
	p, err := domain.NewParameterVector([]string{"alpha_f", "alpha_c", "sigma"}, []float64{-2, -1.5, 0.3333333333333})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteParameters(&buf, p, DefaultPrecision))
	assert.Equal(t, "-2.0000000000\n-1.5000000000\n0.3333333333\n", buf.String())
}

func TestReadPrediction(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		format OutputFormat
		want   domain.PredictedVector
		check  func(error) bool
	}{
		{
			name:  "bare column",
			input: "1.5\n2.5\n\n3.5\n",
			want:  domain.PredictedVector{1.5, 2.5, 3.5},
		},
		{
			name:   "optional header skipped",
			input:  "reactivity\n-0.1\n-0.2\n",
			format: OutputFormat{Expected: 2},
			want:   domain.PredictedVector{-0.1, -0.2},
		},
		{
			name:   "named column",
			input:  "time,fuel,reactivity\n0,300,-1\n1,301,-2\n",
			format: OutputFormat{Column: "reactivity", Expected: 2},
			want:   domain.PredictedVector{-1, -2},
		},
		{
			name:  "comments ignored",
			input: "# produced by solver\n4\n",
			want:  domain.PredictedVector{4},
		},
		{
			name:   "named column missing",
			input:  "time,fuel\n0,300\n",
			format: OutputFormat{Column: "reactivity"},
			check:  apperrors.IsOutputMalformed,
		},
		{
			name:   "named column without header",
			input:  "1,2\n",
			format: OutputFormat{Column: "reactivity"},
			check:  apperrors.IsOutputMalformed,
		},
		{
			name:   "short row",
			input:  "a,b\n1,2\n3\n",
			format: OutputFormat{Column: "b"},
			check:  apperrors.IsOutputMalformed,
		},
		{
			name:   "length mismatch",
			input:  "1\n2\n",
			format: OutputFormat{Expected: 3},
			check:  apperrors.IsOutputMalformed,
		},
		{
			name:  "infinite",
			input: "1\n+Inf\n",
			check: apperrors.IsOutputMalformed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadPrediction(strings.NewReader(tt.input), tt.format)
			if tt.check != nil {
				require.Error(t, err)
				assert.True(t, tt.check(err), "unexpected error: %v", err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInputTemplate(t *testing.T) {
	tmpl, err := ParseInputTemplate("card 1 {alpha_f}\ncard 2 {alpha_c} {alpha_f}\n", []string{"alpha_f", "alpha_c"})
	require.NoError(t, err)

	p, err := domain.NewParameterVector([]string{"alpha_f", "alpha_c"}, []float64{-2, -1.25})
	require.NoError(t, err)

	assert.Equal(t, "card 1 -2.00\ncard 2 -1.25 -2.00\n", tmpl.Render(p, 2))

	_, err = ParseInputTemplate("no placeholders", []string{"a"})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestWriteExogenous(t *testing.T) {
	inputs, err := domain.NewExogenousInputs(
		[]string{"fuel_temperature", "coolant_temperature"},
		map[string][]float64{
			"fuel_temperature":    {300, 302.5},
			"coolant_temperature": {290, 291},
		})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteExogenous(&buf, inputs))
	assert.Equal(t, "fuel_temperature,coolant_temperature\n300,290\n302.5,291\n", buf.String())
}
