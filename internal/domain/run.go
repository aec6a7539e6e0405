package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RunStatus represents the status of an inference run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	// RunStatusPartial means at least one chain aborted but others completed.
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// IsValid checks if the run status is valid
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusPartial, RunStatusFailed:
		return true
	}
	return false
}

// IsFinished reports whether the run will not change any more
func (s RunStatus) IsFinished() bool {
	return s == RunStatusCompleted || s == RunStatusPartial || s == RunStatusFailed
}

// Run is a persisted inference run
type Run struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	ModelName string          `json:"modelName"`
	ModelPath string          `json:"modelPath"`
	Algorithm string          `json:"algorithm"`
	Status    RunStatus       `json:"status"`
	Config    json.RawMessage `json:"config,omitempty"`
	Error     string          `json:"error,omitempty"`
	ExportURI string          `json:"exportUri,omitempty"`

	Chains  []ChainOutcome `json:"chains,omitempty"`
	Summary *Summary       `json:"summary,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ChainOutcome is the persisted form of a ChainResult, without draws.
type ChainOutcome struct {
	RunID             uuid.UUID  `json:"runId"`
	Chain             int        `json:"chain"`
	Seed              uint64     `json:"seed"`
	State             ChainState `json:"state"`
	DrawsRequested    int        `json:"drawsRequested"`
	DrawsCompleted    int        `json:"drawsCompleted"`
	Evaluations       int        `json:"evaluations"`
	FailedEvaluations int        `json:"failedEvaluations"`
	AcceptanceRate    float64    `json:"acceptanceRate"`
	StepSize          float64    `json:"stepSize"`
	AbortIteration    int        `json:"abortIteration,omitempty"`
	AbortReason       string     `json:"abortReason,omitempty"`
	DurationMs        int64      `json:"durationMs"`
}

// NewChainOutcome converts a chain result for persistence
func NewChainOutcome(runID uuid.UUID, r *ChainResult) ChainOutcome {
	return ChainOutcome{
		RunID:             runID,
		Chain:             r.Chain,
		Seed:              r.Seed,
		State:             r.State,
		DrawsRequested:    r.DrawsRequested,
		DrawsCompleted:    r.Trace.Len(),
		Evaluations:       r.Evaluations,
		FailedEvaluations: r.FailedEvaluations,
		AcceptanceRate:    r.AcceptanceRate,
		StepSize:          r.StepSize,
		AbortIteration:    r.AbortIteration,
		AbortReason:       r.AbortReason,
		DurationMs:        r.Duration.Milliseconds(),
	}
}

// DrawRecord is a draw stored against its run and chain
type DrawRecord struct {
	RunID uuid.UUID `json:"runId"`
	Chain int       `json:"chain"`
	Draw
}

// SamplerOverrides replace fields of the sampler section of the configuration
type SamplerOverrides struct {
	Algorithm    string   `json:"algorithm,omitempty" validate:"omitempty,oneof=metropolis hmc"`
	Warmup       *int     `json:"warmup,omitempty" validate:"omitempty,min=0"`
	Draws        *int     `json:"draws,omitempty" validate:"omitempty,min=1"`
	Chains       *int     `json:"chains,omitempty" validate:"omitempty,min=1,max=64"`
	Seed         *uint64  `json:"seed,omitempty"`
	TargetAccept *float64 `json:"targetAccept,omitempty" validate:"omitempty,gt=0,lt=1"`
}

// CreateRunInput represents input for submitting a run
type CreateRunInput struct {
	Name      string            `json:"name" validate:"required,max=255"`
	ModelPath string            `json:"modelPath" validate:"required"`
	Sampler   *SamplerOverrides `json:"sampler,omitempty"`
	Export    bool              `json:"export,omitempty"`
}

// RunFilter represents filter options for listing runs
type RunFilter struct {
	Status    *RunStatus
	ModelName string
}

// RunList is a page of runs
type RunList struct {
	Runs       []Run  `json:"runs"`
	TotalCount int64  `json:"totalCount"`
	NextCursor string `json:"nextCursor,omitempty"`
	HasMore    bool   `json:"hasMore"`
}
