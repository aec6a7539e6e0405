package handler

import (
	"bytes"
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/export"
	"github.com/ynkmn/reactoruq/internal/pkg/pagination"
)

// maxPredictiveSamples bounds the forward model runs one request may trigger.
const maxPredictiveSamples = 1000

// RunService is the part of the inference service the API exposes
type RunService interface {
	Submit(ctx context.Context, input *domain.CreateRunInput) (*domain.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter *domain.RunFilter, limit int, cursor string) (*domain.RunList, error)
	Traces(ctx context.Context, id uuid.UUID) (map[int]*domain.Trace, error)
	Predictive(ctx context.Context, id uuid.UUID, samples int, seed *uint64) (*domain.PredictiveSummary, error)
}

// RunQueue schedules run execution on the workers
type RunQueue interface {
	EnqueueRun(ctx context.Context, runID uuid.UUID, export bool) error
	EnqueueExport(ctx context.Context, runID uuid.UUID) error
}

// RunsHandler handles inference run endpoints
type RunsHandler struct {
	service RunService
	queue   RunQueue
	logger  *zap.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service RunService, queue RunQueue, logger *zap.Logger) *RunsHandler {
	return &RunsHandler{
		service: service,
		queue:   queue,
		logger:  logger,
	}
}

// CreateRun handles POST /v1/runs
func (h *RunsHandler) CreateRun(c *fiber.Ctx) error {
	var input domain.CreateRunInput
	if err := c.BodyParser(&input); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body")
	}

	run, err := h.service.Submit(c.Context(), &input)
	if err != nil {
		return serviceError(c, h.logger, err, "create run")
	}

	if err := h.queue.EnqueueRun(c.Context(), run.ID, input.Export); err != nil {
		return serviceError(c, h.logger, err, "enqueue run")
	}

	return c.Status(fiber.StatusAccepted).JSON(run)
}

// ListRuns handles GET /v1/runs
func (h *RunsHandler) ListRuns(c *fiber.Ctx) error {
	filter := &domain.RunFilter{ModelName: c.Query("model")}
	if s := c.Query("status"); s != "" {
		status := domain.RunStatus(s)
		if !status.IsValid() {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid status")
		}
		filter.Status = &status
	}
	limit := pagination.ClampLimit(parseQueryInt(c, "limit", pagination.DefaultLimit))

	list, err := h.service.List(c.Context(), filter, limit, c.Query("cursor"))
	if err != nil {
		return serviceError(c, h.logger, err, "list runs")
	}
	return c.JSON(list)
}

// GetRun handles GET /v1/runs/:runId
func (h *RunsHandler) GetRun(c *fiber.Ctx) error {
	id, ok, err := parseRunID(c)
	if !ok {
		return err
	}

	run, err := h.service.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, h.logger, err, "get run")
	}
	return c.JSON(run)
}

// GetSummary handles GET /v1/runs/:runId/summary. With format=table the
// summary is rendered as text followed by convergence warnings.
func (h *RunsHandler) GetSummary(c *fiber.Ctx) error {
	id, ok, err := parseRunID(c)
	if !ok {
		return err
	}

	run, err := h.service.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, h.logger, err, "get run")
	}
	if run.Summary == nil {
		return errorResponse(c, fiber.StatusConflict, "Run "+string(run.Status)+" has no summary yet")
	}

	if c.Query("format") != "table" {
		return c.JSON(run.Summary)
	}
	var buf bytes.Buffer
	if err := diagnostics.Render(&buf, run.Summary); err != nil {
		return serviceError(c, h.logger, err, "render summary")
	}
	for _, w := range diagnostics.Warnings(run.Summary) {
		buf.WriteString("warning: " + w + "\n")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Send(buf.Bytes())
}

// GetDraws handles GET /v1/runs/:runId/draws as CSV, optionally for one chain
func (h *RunsHandler) GetDraws(c *fiber.Ctx) error {
	id, ok, err := parseRunID(c)
	if !ok {
		return err
	}

	traces, err := h.service.Traces(c.Context(), id)
	if err != nil {
		return serviceError(c, h.logger, err, "load draws")
	}
	if s := c.Query("chain"); s != "" {
		chain, err := strconv.Atoi(s)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid chain")
		}
		t, found := traces[chain]
		if !found {
			return errorResponse(c, fiber.StatusNotFound, "Chain not found")
		}
		traces = map[int]*domain.Trace{chain: t}
	}

	var buf bytes.Buffer
	if err := export.WriteTraceCSV(&buf, traces); err != nil {
		return serviceError(c, h.logger, err, "write draws")
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+id.String()+`.csv"`)
	return c.Send(buf.Bytes())
}

// GetPredictive handles GET /v1/runs/:runId/predictive. The forward model is
// re-run at `samples` draws chosen with `seed`; format=table renders text.
func (h *RunsHandler) GetPredictive(c *fiber.Ctx) error {
	id, ok, err := parseRunID(c)
	if !ok {
		return err
	}

	samples := parseQueryInt(c, "samples", diagnostics.DefaultPredictiveSamples)
	if samples <= 0 || samples > maxPredictiveSamples {
		return errorResponse(c, fiber.StatusBadRequest, "samples must be between 1 and "+strconv.Itoa(maxPredictiveSamples))
	}
	var seed *uint64
	if s := c.Query("seed"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return errorResponse(c, fiber.StatusBadRequest, "Invalid seed")
		}
		seed = &v
	}

	summary, err := h.service.Predictive(c.Context(), id, samples, seed)
	if err != nil {
		return serviceError(c, h.logger, err, "compute posterior predictive")
	}
	if c.Query("format") != "table" {
		return c.JSON(summary)
	}
	var buf bytes.Buffer
	if err := diagnostics.RenderPredictive(&buf, summary); err != nil {
		return serviceError(c, h.logger, err, "render posterior predictive")
	}
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Send(buf.Bytes())
}

// ExportRun handles POST /v1/runs/:runId/export
func (h *RunsHandler) ExportRun(c *fiber.Ctx) error {
	id, ok, err := parseRunID(c)
	if !ok {
		return err
	}

	run, err := h.service.Get(c.Context(), id)
	if err != nil {
		return serviceError(c, h.logger, err, "get run")
	}
	if !run.Status.IsFinished() {
		return errorResponse(c, fiber.StatusConflict, "Run has not finished")
	}
	if err := h.queue.EnqueueExport(c.Context(), id); err != nil {
		return serviceError(c, h.logger, err, "enqueue export")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"runId":  id,
		"status": "queued",
	})
}

// RegisterRoutes registers run routes under router
func (h *RunsHandler) RegisterRoutes(router fiber.Router) {
	router.Post("/runs", h.CreateRun)
	router.Get("/runs", h.ListRuns)
	router.Get("/runs/:runId", h.GetRun)
	router.Get("/runs/:runId/summary", h.GetSummary)
	router.Get("/runs/:runId/draws", h.GetDraws)
	router.Get("/runs/:runId/predictive", h.GetPredictive)
	router.Post("/runs/:runId/export", h.ExportRun)
}
