package reactor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"

	"github.com/ynkmn/reactoruq/internal/dataset"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

func TestLinear_ReferencePointIsZero(t *testing.T) {
	out := Linear(0.05, -0.02, []float64{550, 650}, []float64{315, 315})
	assert.InDelta(t, 0, out[0], 1e-12)
	assert.InDelta(t, 5, out[1], 1e-12)
}

func TestRecalc_ReducesToPlainSumAtTruth(t *testing.T) {
	fuel := []float64{300, 340}
	coolant := []float64{290, 310}
	out := Recalc(-2, -1.5, fuel, coolant)
	for i := range fuel {
		assert.InDelta(t, -2*fuel[i]-1.5*coolant[i], out[i], 1e-9)
	}

	shifted := Recalc(-1, -1.5, fuel, coolant)
	assert.InDelta(t, -1*fuel[0]*1.01-1.5*coolant[0], shifted[0], 1e-9)
}

func TestLookup(t *testing.T) {
	m, err := Lookup(KindLinear)
	require.NoError(t, err)
	assert.NotNil(t, m.Jacobian)

	m, err = Lookup(KindRecalc)
	require.NoError(t, err)
	assert.Nil(t, m.Jacobian)

	_, err = Lookup("pwr")
	assert.True(t, apperrors.IsConfiguration(err))
	assert.Equal(t, []string{"linear", "recalc"}, Kinds())
}

func TestSynthesize(t *testing.T) {
	tbl, err := Synthesize(SyntheticConfig{Kind: KindRecalc, Points: 101, Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, []string{ColumnTime, ColumnFuel, ColumnCoolant, ColumnObserved}, tbl.Columns())
	assert.Equal(t, 101, tbl.Rows())

	tm, _ := tbl.Column(ColumnTime)
	assert.Equal(t, 0.0, tm[0])
	assert.Equal(t, 100.0, tm[100])
	fuel, _ := tbl.Column(ColumnFuel)
	assert.InDelta(t, 300, fuel[0], 1e-12)
	assert.InDelta(t, FuelTransient(100), fuel[100], 1e-12)

	again, err := Synthesize(SyntheticConfig{Kind: KindRecalc, Points: 101, Seed: 7})
	require.NoError(t, err)
	a, _ := tbl.Column(ColumnObserved)
	b, _ := again.Column(ColumnObserved)
	assert.Equal(t, a, b)

	other, err := Synthesize(SyntheticConfig{Kind: KindRecalc, Points: 101, Seed: 8})
	require.NoError(t, err)
	c, _ := other.Column(ColumnObserved)
	assert.NotEqual(t, a, c)
}

func TestSynthesize_NoiseMatchesModel(t *testing.T) {
	tbl, err := Synthesize(SyntheticConfig{Kind: KindLinear, Points: 4000, Seed: 1})
	require.NoError(t, err)

	fuel, _ := tbl.Column(ColumnFuel)
	coolant, _ := tbl.Column(ColumnCoolant)
	obs, _ := tbl.Column(ColumnObserved)
	clean := Linear(0.05, -0.02, fuel, coolant)

	resid := make([]float64, len(obs))
	for i := range obs {
		resid[i] = obs[i] - clean[i]
	}
	assert.InDelta(t, 0.5, stat.StdDev(resid, nil), 0.05)

	_, err = Synthesize(SyntheticConfig{Kind: KindLinear, Points: 1})
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestModel_Evaluator(t *testing.T) {
	tbl, err := Synthesize(SyntheticConfig{Kind: KindLinear, Points: 20, Seed: 3, Noiseless: true})
	require.NoError(t, err)
	inputs, err := tbl.Exogenous([]string{ColumnFuel, ColumnCoolant})
	require.NoError(t, err)
	params, err := domain.NewParameterVector([]string{"a", "b"}, []float64{0.05, -0.02})
	require.NoError(t, err)

	lin, _ := Lookup(KindLinear)
	ev, err := lin.Evaluator("", DefaultBinding, inputs)
	require.NoError(t, err)
	assert.True(t, evaluator.HasJacobian(ev))
	assert.Equal(t, KindLinear, ev.Name())

	pred, err := ev.Evaluate(context.Background(), params)
	require.NoError(t, err)
	obs, _ := tbl.Column(ColumnObserved)
	assert.InDeltaSlice(t, obs, []float64(pred), 1e-9)

	rc, _ := Lookup(KindRecalc)
	ev, err = rc.Evaluator("thermal", DefaultBinding, inputs)
	require.NoError(t, err)
	assert.False(t, evaluator.HasJacobian(ev))

	_, err = lin.Evaluator("", Binding{Fuel: "nope", Coolant: ColumnCoolant}, inputs)
	assert.True(t, apperrors.IsConfiguration(err))
}

func TestModel_RunFile(t *testing.T) {
	dir := t.TempDir()
	tbl, err := Synthesize(SyntheticConfig{Kind: KindRecalc, Points: 11, Seed: 1})
	require.NoError(t, err)
	exo := filepath.Join(dir, "exogenous.csv")
	require.NoError(t, tbl.Save(exo))

	in := filepath.Join(dir, "input.dat")
	require.NoError(t, os.WriteFile(in, []byte("-2.0000000000\n-1.5000000000\n"), 0o600))
	out := filepath.Join(dir, "output.dat")

	m, _ := Lookup(KindRecalc)
	require.NoError(t, m.RunFile(FileRequest{InputPath: in, ExogenousPath: exo, OutputPath: out}))

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	pred, err := evaluator.ReadPrediction(f, evaluator.OutputFormat{Column: ColumnReactivity, Expected: 11})
	require.NoError(t, err)

	fuel, _ := tbl.Column(ColumnFuel)
	coolant, _ := tbl.Column(ColumnCoolant)
	for i := range pred {
		assert.InDelta(t, -2*fuel[i]-1.5*coolant[i], pred[i], 1e-9)
	}
}

func TestModel_RunFileRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	exo := filepath.Join(dir, "exogenous.csv")
	tbl, _ := dataset.NewTable([]string{ColumnFuel, ColumnCoolant}, map[string][]float64{
		ColumnFuel: {300}, ColumnCoolant: {290},
	})
	require.NoError(t, tbl.Save(exo))

	in := filepath.Join(dir, "input.dat")
	require.NoError(t, os.WriteFile(in, []byte("1\n"), 0o600))

	m, _ := Lookup(KindLinear)
	err := m.RunFile(FileRequest{InputPath: in, ExogenousPath: exo, OutputPath: filepath.Join(dir, "out")})
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(in, []byte("1\nabc\n"), 0o600))
	err = m.RunFile(FileRequest{InputPath: in, ExogenousPath: exo, OutputPath: filepath.Join(dir, "out")})
	assert.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "out"))
}
