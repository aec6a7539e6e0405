package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/export"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/service"
)

const (
	// TypeInferenceRun is the task type for executing a submitted run
	TypeInferenceRun = "inference:run"
	// TypeInferenceExport is the task type for exporting a finished run
	TypeInferenceExport = "inference:export"
)

// InferenceService is the part of the service layer the worker drives
type InferenceService interface {
	Execute(ctx context.Context, id uuid.UUID, exportRun bool) (*service.Outcome, error)
	Export(ctx context.Context, id uuid.UUID) (*export.Result, error)
}

// InferenceRunPayload is the payload for inference run tasks
type InferenceRunPayload struct {
	RunID  uuid.UUID `json:"run_id"`
	Export bool      `json:"export"`
}

// NewInferenceRunTask creates an inference run task. Runs are not retried:
// a retried run would resample from scratch and the first attempt has
// already moved the run out of pending.
func NewInferenceRunTask(payload *InferenceRunPayload, timeout time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference run payload: %w", err)
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.TaskID(payload.RunID.String())}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout))
	}
	return asynq.NewTask(TypeInferenceRun, data, opts...), nil
}

// InferenceExportPayload is the payload for export tasks
type InferenceExportPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// NewInferenceExportTask creates an export task
func NewInferenceExportTask(payload *InferenceExportPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal inference export payload: %w", err)
	}
	return asynq.NewTask(TypeInferenceExport, data, asynq.MaxRetry(3), asynq.Timeout(30*time.Minute)), nil
}

// InferenceWorker handles inference tasks
type InferenceWorker struct {
	logger  *zap.Logger
	service InferenceService
}

// NewInferenceWorker creates a new inference worker
func NewInferenceWorker(logger *zap.Logger, svc InferenceService) *InferenceWorker {
	return &InferenceWorker{
		logger:  logger,
		service: svc,
	}
}

// ProcessTask executes a submitted run
func (w *InferenceWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload InferenceRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inference run payload: %v: %w", err, asynq.SkipRetry)
	}

	w.logger.Info("processing inference run",
		zap.String("run_id", payload.RunID.String()),
		zap.Bool("export", payload.Export),
	)

	out, err := w.service.Execute(ctx, payload.RunID, payload.Export)
	if err != nil {
		return permanent(fmt.Errorf("failed to execute run %s: %w", payload.RunID, err))
	}

	w.logger.Info("inference run completed",
		zap.String("run_id", payload.RunID.String()),
		zap.String("status", string(out.Run.Status)),
	)
	return nil
}

// ProcessExportTask exports the stored draws of a finished run
func (w *InferenceWorker) ProcessExportTask(ctx context.Context, t *asynq.Task) error {
	var payload InferenceExportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal inference export payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := w.service.Export(ctx, payload.RunID)
	if err != nil {
		return permanent(fmt.Errorf("failed to export run %s: %w", payload.RunID, err))
	}

	w.logger.Info("run exported",
		zap.String("run_id", payload.RunID.String()),
		zap.String("trace_uri", res.TraceURI),
		zap.String("summary_uri", res.SummaryURI),
	)
	return nil
}

// permanent marks errors that a retry cannot fix.
func permanent(err error) error {
	switch {
	case apperrors.IsNotFound(err), apperrors.IsConflict(err),
		apperrors.IsConfiguration(err), apperrors.IsValidation(err):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
