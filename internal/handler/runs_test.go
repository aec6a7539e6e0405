package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// MockRunService mocks the inference service for testing
type MockRunService struct {
	mock.Mock
}

func (m *MockRunService) Submit(ctx context.Context, input *domain.CreateRunInput) (*domain.Run, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunService) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Run), args.Error(1)
}

func (m *MockRunService) List(ctx context.Context, filter *domain.RunFilter, limit int, cursor string) (*domain.RunList, error) {
	args := m.Called(ctx, filter, limit, cursor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RunList), args.Error(1)
}

func (m *MockRunService) Traces(ctx context.Context, id uuid.UUID) (map[int]*domain.Trace, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]*domain.Trace), args.Error(1)
}

func (m *MockRunService) Predictive(ctx context.Context, id uuid.UUID, samples int, seed *uint64) (*domain.PredictiveSummary, error) {
	args := m.Called(ctx, id, samples, seed)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PredictiveSummary), args.Error(1)
}

// MockRunQueue mocks the task queue for testing
type MockRunQueue struct {
	mock.Mock
}

func (m *MockRunQueue) EnqueueRun(ctx context.Context, runID uuid.UUID, export bool) error {
	args := m.Called(ctx, runID, export)
	return args.Error(0)
}

func (m *MockRunQueue) EnqueueExport(ctx context.Context, runID uuid.UUID) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

func setupRunsApp(svc *MockRunService, queue *MockRunQueue) *fiber.App {
	app := fiber.New()
	h := NewRunsHandler(svc, queue, zap.NewNop())
	h.RegisterRoutes(app.Group("/api/v1"))
	return app
}

func finishedRun() *domain.Run {
	trace := domain.NewTrace([]string{"a"}, 2)
	_ = trace.Append(domain.Draw{Iteration: 0, Values: []float64{0.1}, Accepted: true})
	_ = trace.Append(domain.Draw{Iteration: 1, Values: []float64{0.2}})
	return &domain.Run{
		ID:     uuid.New(),
		Name:   "calibration",
		Status: domain.RunStatusPartial,
		Summary: &domain.Summary{
			HDIProb:    0.95,
			TotalDraws: 2,
			Parameters: []domain.ParameterSummary{{
				Name: "a", Mean: 0.15, SD: 0.07,
				HDILower: math.NaN(), HDIUpper: math.NaN(),
				MCSE: math.NaN(), ESS: math.NaN(), RHat: math.NaN(),
			}},
			Chains: []domain.ChainSummary{{Chain: 0, State: domain.ChainStateAborted, Draws: 2}},
		},
	}
}

func TestRunsHandler_CreateRun(t *testing.T) {
	t.Run("submits and enqueues", func(t *testing.T) {
		svc := new(MockRunService)
		queue := new(MockRunQueue)
		run := &domain.Run{ID: uuid.New(), Name: "calibration", Status: domain.RunStatusPending}

		svc.On("Submit", mock.Anything, mock.MatchedBy(func(in *domain.CreateRunInput) bool {
			return in.Name == "calibration" && in.ModelPath == "thermal.yaml" && *in.Sampler.Draws == 500
		})).Return(run, nil)
		queue.On("EnqueueRun", mock.Anything, run.ID, true).Return(nil)

		body := `{"name":"calibration","modelPath":"thermal.yaml","export":true,"sampler":{"draws":500}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupRunsApp(svc, queue).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)

		var got domain.Run
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, run.ID, got.ID)
		svc.AssertExpectations(t)
		queue.AssertExpectations(t)
	})

	t.Run("validation error keeps its code", func(t *testing.T) {
		svc := new(MockRunService)
		queue := new(MockRunQueue)
		svc.On("Submit", mock.Anything, mock.Anything).Return(nil, apperrors.Validation("name is required"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString(`{"modelPath":"m.yaml"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupRunsApp(svc, queue).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var got ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, apperrors.CodeValidation, got.Code)
		queue.AssertNotCalled(t, "EnqueueRun", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")

		resp, err := setupRunsApp(new(MockRunService), new(MockRunQueue)).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRunsHandler_ListRuns(t *testing.T) {
	svc := new(MockRunService)
	svc.On("List", mock.Anything, mock.MatchedBy(func(f *domain.RunFilter) bool {
		return f.Status != nil && *f.Status == domain.RunStatusCompleted && f.ModelName == "thermal"
	}), 200, "abc").Return(&domain.RunList{Runs: []domain.Run{{Name: "r1"}}, HasMore: true, NextCursor: "def"}, nil)

	app := setupRunsApp(svc, new(MockRunQueue))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=completed&model=thermal&limit=1000&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var got domain.RunList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.Runs, 1)
	assert.Equal(t, "def", got.NextCursor)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=bogus", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunsHandler_GetRun(t *testing.T) {
	svc := new(MockRunService)
	missing := uuid.New()
	svc.On("Get", mock.Anything, missing).Return(nil, apperrors.NotFound("run"))
	app := setupRunsApp(svc, new(MockRunQueue))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+missing.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunsHandler_GetSummary(t *testing.T) {
	svc := new(MockRunService)
	run := finishedRun()
	pending := &domain.Run{ID: uuid.New(), Status: domain.RunStatusPending}
	svc.On("Get", mock.Anything, run.ID).Return(run, nil)
	svc.On("Get", mock.Anything, pending.ID).Return(pending, nil)
	app := setupRunsApp(svc, new(MockRunQueue))

	t.Run("json with null for missing statistics", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/summary", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"rhat":null`)
	})

	t.Run("table", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/summary?format=table", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "hdi_2.5%")
		assert.Contains(t, string(body), "warning: chain 0 aborted after 2 draws")
	})

	t.Run("not finished", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+pending.ID.String()+"/summary", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRunsHandler_GetDraws(t *testing.T) {
	svc := new(MockRunService)
	id := uuid.New()
	trace := domain.NewTrace([]string{"a"}, 1)
	require.NoError(t, trace.Append(domain.Draw{Iteration: 0, Values: []float64{1.5}, Accepted: true}))
	trace.Seal()
	svc.On("Traces", mock.Anything, id).Return(map[int]*domain.Trace{0: trace}, nil)
	app := setupRunsApp(svc, new(MockRunQueue))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String()+"/draws", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chain,iteration,a,")

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id.String()+"/draws?chain=3", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsHandler_GetPredictive(t *testing.T) {
	svc := new(MockRunService)
	id := uuid.New()
	running := uuid.New()
	summary := &domain.PredictiveSummary{
		Seed: 5, Requested: 20, Evaluated: 19, Failed: 1,
		Observations: []domain.PredictivePoint{{Index: 0, Observed: 1.2, Mean: 1.0, SD: 0.2, Lower: 0.6, Upper: 1.4}},
	}
	seed := uint64(5)
	svc.On("Predictive", mock.Anything, id, diagnostics.DefaultPredictiveSamples, (*uint64)(nil)).Return(summary, nil)
	svc.On("Predictive", mock.Anything, id, 20, &seed).Return(summary, nil)
	svc.On("Predictive", mock.Anything, running, mock.Anything, mock.Anything).
		Return(nil, apperrors.Conflict("run "+running.String()+" has not finished"))
	app := setupRunsApp(svc, new(MockRunQueue))
	base := "/api/v1/runs/" + id.String() + "/predictive"

	t.Run("defaults", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, base, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got domain.PredictiveSummary
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, 19, got.Evaluated)
		require.Len(t, got.Observations, 1)
		assert.Equal(t, 1.4, got.Observations[0].Upper)
	})

	t.Run("samples and seed as table", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, base+"?samples=20&seed=5&format=table", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "19 of 20 draws evaluated (seed 5)")
	})

	t.Run("bad query", func(t *testing.T) {
		for _, q := range []string{"?samples=0", "?samples=5000", "?seed=-1"} {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, base+q, nil))
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})

	t.Run("not finished", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+running.String()+"/predictive", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})
}

func TestRunsHandler_ExportRun(t *testing.T) {
	svc := new(MockRunService)
	queue := new(MockRunQueue)
	run := finishedRun()
	running := &domain.Run{ID: uuid.New(), Status: domain.RunStatusRunning}
	svc.On("Get", mock.Anything, run.ID).Return(run, nil)
	svc.On("Get", mock.Anything, running.ID).Return(running, nil)
	queue.On("EnqueueExport", mock.Anything, run.ID).Return(nil)
	app := setupRunsApp(svc, queue)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/export", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+running.ID.String()+"/export", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	queue.AssertNumberOfCalls(t, "EnqueueExport", 1)
}
