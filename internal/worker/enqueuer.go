package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ynkmn/reactoruq/internal/config"
)

// Enqueuer submits inference tasks to the queue
type Enqueuer struct {
	client     *asynq.Client
	queue      string
	lowQueue   string
	runTimeout time.Duration
}

// NewEnqueuer creates an enqueuer on the configured Redis
func NewEnqueuer(cfg *config.Config) *Enqueuer {
	return &Enqueuer{
		client:     asynq.NewClient(redisOpt(cfg)),
		queue:      cfg.Worker.QueueDefault,
		lowQueue:   cfg.Worker.QueueLow,
		runTimeout: cfg.Worker.RunTimeout,
	}
}

// Close closes the queue client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// EnqueueRun enqueues execution of a submitted run
func (e *Enqueuer) EnqueueRun(ctx context.Context, runID uuid.UUID, export bool) error {
	task, err := NewInferenceRunTask(&InferenceRunPayload{RunID: runID, Export: export}, e.runTimeout)
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.queue)); err != nil {
		return fmt.Errorf("failed to enqueue run %s: %w", runID, err)
	}
	return nil
}

// EnqueueExport enqueues export of a finished run
func (e *Enqueuer) EnqueueExport(ctx context.Context, runID uuid.UUID) error {
	task, err := NewInferenceExportTask(&InferenceExportPayload{RunID: runID})
	if err != nil {
		return err
	}
	if _, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.lowQueue)); err != nil {
		return fmt.Errorf("failed to enqueue export of run %s: %w", runID, err)
	}
	return nil
}
