package dataset

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

const sample = `# synthetic transient
time,fuel_temperature,coolant_temperature,observed_reactivity
0,300,290,-1035

1,302.4,291,-1040.5
`

func TestRead(t *testing.T) {
	tbl, err := Read(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, []string{"time", "fuel_temperature", "coolant_temperature", "observed_reactivity"}, tbl.Columns())
	assert.Equal(t, 2, tbl.Rows())

	obs, err := tbl.Observed("observed_reactivity")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1035, -1040.5}, []float64(obs))

	exo, err := tbl.Exogenous([]string{"fuel_temperature", "coolant_temperature"})
	require.NoError(t, err)
	assert.Equal(t, 2, exo.Rows())
	fuel, ok := exo.Column("fuel_temperature")
	require.True(t, ok)
	assert.Equal(t, []float64{300, 302.4}, fuel)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "bad number", input: "a,b\n1,x\n"},
		{name: "nan", input: "a\nNaN\n"},
		{name: "ragged", input: "a,b\n1\n"},
		{name: "duplicate column", input: "a,a\n1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input))
			assert.True(t, apperrors.IsConfiguration(err), "got %v", err)
		})
	}
}

func TestTable_MissingColumn(t *testing.T) {
	tbl, err := Read(strings.NewReader("a\n1\n"))
	require.NoError(t, err)

	_, err = tbl.Observed("b")
	assert.True(t, apperrors.IsConfiguration(err))
	_, err = tbl.Exogenous([]string{"a", "b"})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestTable_SaveLoadRoundTrip(t *testing.T) {
	tbl, err := NewTable([]string{"x", "y"}, map[string][]float64{
		"x": {0, 0.1, 1e-12},
		"y": {-3.25, 7, 123456.789},
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "data.csv")
	require.NoError(t, tbl.Save(path))

	back, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns(), back.Columns())
	for _, c := range tbl.Columns() {
		want, _ := tbl.Column(c)
		got, _ := back.Column(c)
		assert.Equal(t, want, got)
	}
}

func TestTable_WriteHeaderOnly(t *testing.T) {
	tbl, err := NewTable([]string{"x"}, map[string][]float64{"x": nil})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	assert.Equal(t, "x\n", buf.String())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, apperrors.IsConfiguration(err))
}
