package export

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

func sampleTraces() map[int]*domain.Trace {
	a := domain.NewTrace([]string{"fuel_temp_coef", "sigma"}, 2)
	_ = a.Append(domain.Draw{Iteration: 0, Values: []float64{-2.5, 9.75}, LogLikelihood: -120.5, LogPosterior: -123, Accepted: true})
	_ = a.Append(domain.Draw{Iteration: 1, Values: []float64{-2.5, 9.75}, LogLikelihood: -120.5, LogPosterior: -123, EvaluationFailed: true})
	a.Seal()
	b := domain.NewTrace([]string{"fuel_temp_coef", "sigma"}, 1)
	_ = b.Append(domain.Draw{Iteration: 0, Values: []float64{-1.0 / 3, 1e-7}, LogLikelihood: -1e10, LogPosterior: -1e10})
	return map[int]*domain.Trace{1: b, 0: a}
}

func TestTraceCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTraceCSV(&buf, sampleTraces()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "chain,iteration,fuel_temp_coef,sigma,log_likelihood,log_posterior,accepted,evaluation_failed", lines[0])
	assert.Equal(t, "0,0,-2.5,9.75,-120.5,-123,true,false", lines[1])
	assert.True(t, strings.HasPrefix(lines[3], "1,0,"))

	back, err := ReadTraceCSV(&buf)
	require.NoError(t, err)
	require.Len(t, back, 2)
	assert.Equal(t, sampleTraces()[0].Draws, back[0].Draws)
	assert.Equal(t, -1.0/3, back[1].Draws[0].Values[0])
	assert.True(t, back[1].Sealed())
}

func TestWriteTraceCSV_MismatchedNames(t *testing.T) {
	traces := sampleTraces()
	traces[2] = domain.NewTrace([]string{"other"}, 0)
	err := WriteTraceCSV(&bytes.Buffer{}, traces)
	assert.True(t, apperrors.IsAppError(err))
}

func TestReadTraceCSV_Errors(t *testing.T) {
	tests := map[string]string{
		"empty":      "",
		"bad header": "a,b,c\n",
		"bad value": "chain,iteration,x,log_likelihood,log_posterior,accepted,evaluation_failed\n" +
			"0,0,abc,1,1,true,false\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadTraceCSV(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestExporter_LocalStore(t *testing.T) {
	dir := t.TempDir()
	e := NewExporter(NewLocalStore(dir), nil)

	summary := &domain.Summary{HDIProb: 0.95, Parameters: []domain.ParameterSummary{{Name: "a", RHat: math.NaN()}}}
	res, err := e.Export(context.Background(), "run-1", sampleTraces(), summary)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.TraceURI, "file://"))

	data, err := os.ReadFile(filepath.Join(dir, "runs", "run-1", "trace.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "fuel_temp_coef")

	data, err = os.ReadFile(filepath.Join(dir, "runs", "run-1", "summary.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rhat": null`)
}

func TestExporter_MinIO(t *testing.T) {
	endpoint := os.Getenv("MINIO_TEST_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping integration test: MINIO_TEST_ENDPOINT not set")
	}
	ctx := context.Background()
	cfg := config.MinIOConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("MINIO_TEST_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_TEST_SECRET_KEY"),
		Bucket:    "reactoruq-test",
	}
	client, err := NewMinIOClient(ctx, cfg, nil)
	require.NoError(t, err)

	runID := uuid.NewString()
	res, err := NewExporter(NewMinIOStore(client, cfg.Bucket), nil).Export(ctx, runID, sampleTraces(), nil)
	require.NoError(t, err)
	assert.Equal(t, "s3://reactoruq-test/runs/"+runID+"/trace.csv", res.TraceURI)
	assert.Empty(t, res.SummaryURI)
}
