package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/dataset"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/export"
)

const cliModel = `
name: cli-linear
parameters:
  - {name: a, prior: {kind: normal, mu: 0, sigma: 0.1}}
  - {name: b, prior: {kind: normal, mu: 0, sigma: 0.1}}
noise:
  scale: {fixed: 0.5}
data:
  path: data.csv
  observed_column: observed_reactivity
  exogenous_columns: [fuel_temperature, coolant_temperature]
forward:
  kind: linear
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimulateAndForward(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "data.csv")

	out, err := execute(t, "simulate", "--kind", "linear", "--points", "12", "--noiseless", "--out", data)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 12 rows")

	tbl, err := dataset.Load(data)
	require.NoError(t, err)
	assert.Equal(t, 12, tbl.Rows())

	params := filepath.Join(dir, "params.txt")
	require.NoError(t, os.WriteFile(params, []byte("-2.5\n-1.5\n"), 0o600))
	pred := filepath.Join(dir, "pred.txt")

	_, err = execute(t, "forward", "--kind", "linear", params, data, pred)
	require.NoError(t, err)

	raw, err := os.ReadFile(pred)
	require.NoError(t, err)
	lines := strings.Fields(string(raw))
	assert.Len(t, lines, 12)
}

func TestForward_UnknownKind(t *testing.T) {
	dir := t.TempDir()
	_, err := execute(t, "forward", "--kind", "pwr", filepath.Join(dir, "p"), filepath.Join(dir, "d"), filepath.Join(dir, "o"))
	assert.Error(t, err)
}

func TestRunAndSummarize(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REACTORUQ_EVALUATOR_WORKSPACE_ROOT", filepath.Join(dir, "ws"))
	t.Setenv("REACTORUQ_EXPORT_DIR", filepath.Join(dir, "exports"))

	_, err := execute(t, "simulate", "--kind", "linear", "--points", "30", "--seed", "3", "--out", filepath.Join(dir, "data.csv"))
	require.NoError(t, err)
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(cliModel), 0o600))

	trace := filepath.Join(dir, "trace.csv")
	summary := filepath.Join(dir, "summary.json")
	out, err := execute(t, "run", modelPath,
		"--log-level", "error",
		"--warmup", "50", "--draws", "100", "--chains", "2", "--seed", "11",
		"--trace-out", trace, "--summary-out", summary,
	)
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "2/2 chains")
	assert.FileExists(t, summary)

	f, err := os.Open(trace)
	require.NoError(t, err)
	traces, err := export.ReadTraceCSV(f)
	f.Close()
	require.NoError(t, err)
	require.Len(t, traces, 2)
	assert.Equal(t, 100, traces[0].Len())

	out, err = execute(t, "summarize", trace)
	require.NoError(t, err)
	assert.Contains(t, out, "r_hat")
	assert.Contains(t, out, "a")
}

func TestPredict(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("REACTORUQ_EVALUATOR_WORKSPACE_ROOT", filepath.Join(dir, "ws"))

	_, err := execute(t, "simulate", "--kind", "linear", "--points", "30", "--seed", "3", "--out", filepath.Join(dir, "data.csv"))
	require.NoError(t, err)
	modelPath := filepath.Join(dir, "model.yaml")
	require.NoError(t, os.WriteFile(modelPath, []byte(cliModel), 0o600))
	trace := filepath.Join(dir, "trace.csv")
	_, err = execute(t, "run", modelPath, "--log-level", "error",
		"--warmup", "50", "--draws", "60", "--chains", "2", "--seed", "5", "--trace-out", trace, "--summary-out", "")
	require.NoError(t, err)

	out, err := execute(t, "predict", modelPath, trace, "--log-level", "error", "--samples", "40", "--seed", "8", "--json")
	require.NoError(t, err)
	var summary domain.PredictiveSummary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 40, summary.Evaluated)
	assert.Equal(t, uint64(8), summary.Seed)
	assert.Len(t, summary.Observations, 30)

	out, err = execute(t, "predict", modelPath, trace, "--log-level", "error", "--samples", "40", "--seed", "8", "--json=false")
	require.NoError(t, err)
	assert.Contains(t, out, "40 of 40 draws evaluated (seed 8)")

	_, err = execute(t, "predict", modelPath, trace, "--samples", "0")
	assert.Error(t, err)
}
