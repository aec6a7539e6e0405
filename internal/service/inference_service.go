package service

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/diagnostics"
	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/export"
	"github.com/ynkmn/reactoruq/internal/model"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/id"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
	"github.com/ynkmn/reactoruq/internal/sampler"
	"github.com/ynkmn/reactoruq/internal/validator"
)

// RunRepository persists run metadata and chain outcomes
type RunRepository interface {
	Create(ctx context.Context, run *domain.Run) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RunStatus, message string) error
	SaveResults(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter *domain.RunFilter, limit int, cursor string) (*domain.RunList, error)
}

// DrawRepository persists posterior draws
type DrawRepository interface {
	InsertTraces(ctx context.Context, runID uuid.UUID, traces map[int]*domain.Trace) error
	Traces(ctx context.Context, runID uuid.UUID) (map[int]*domain.Trace, error)
}

// Exporter writes run artifacts to storage
type Exporter interface {
	Export(ctx context.Context, runID string, traces map[int]*domain.Trace, summary *domain.Summary) (*export.Result, error)
}

// persistTimeout bounds storing the results of a run whose context is gone.
const persistTimeout = 30 * time.Second

// ModelLoader builds the model at a path
type ModelLoader func(path string, opts model.Options) (*model.Model, error)

// RunRequest describes one inference job
type RunRequest struct {
	// RunID identifies a run already created with Submit. When nil a new
	// run is created.
	RunID     *uuid.UUID
	Name      string
	ModelPath string
	Sampler   sampler.Config
	Export    bool
	// Observer receives chain progress in addition to the built-in ones.
	Observer sampler.Observer
}

// Outcome is the result of an executed run
type Outcome struct {
	Run    *domain.Run
	Result *sampler.Result
	Export *export.Result
}

// InferenceService handles inference run operations
type InferenceService struct {
	runs      RunRepository
	draws     DrawRepository
	exporter  Exporter
	notifier  Notifier
	load      ModelLoader
	modelOpts model.Options
	defaults  sampler.Config
	modelDir  string
	hdiProb   float64
	logger    *zap.Logger
}

// Option configures an InferenceService
type Option func(*InferenceService)

// WithRunRepository persists runs and chain outcomes
func WithRunRepository(r RunRepository) Option {
	return func(s *InferenceService) { s.runs = r }
}

// WithDrawRepository persists draws
func WithDrawRepository(r DrawRepository) Option {
	return func(s *InferenceService) { s.draws = r }
}

// WithExporter enables export of traces and summaries
func WithExporter(e Exporter) Option {
	return func(s *InferenceService) { s.exporter = e }
}

// WithNotifier reports aborted chains
func WithNotifier(n Notifier) Option {
	return func(s *InferenceService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithModelLoader replaces model.Load
func WithModelLoader(l ModelLoader) Option {
	return func(s *InferenceService) { s.load = l }
}

// WithModelDir restricts submitted model paths to dir
func WithModelDir(dir string) Option {
	return func(s *InferenceService) { s.modelDir = dir }
}

// WithLogger sets the service logger
func WithLogger(l *zap.Logger) Option {
	return func(s *InferenceService) { s.logger = logger.OrNop(l) }
}

// NewInferenceService creates a new inference service. defaults apply to
// every run unless a request overrides them.
func NewInferenceService(defaults sampler.Config, modelOpts model.Options, opts ...Option) *InferenceService {
	s := &InferenceService{
		notifier:  nopNotifier{},
		load:      model.Load,
		modelOpts: modelOpts,
		defaults:  defaults,
		hdiProb:   diagnostics.DefaultHDIProb,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.modelOpts.Logger == nil {
		s.modelOpts.Logger = s.logger
	}
	return s
}

// SamplerConfig converts the configuration file section to a driver config
func SamplerConfig(c config.SamplerConfig) sampler.Config {
	return sampler.Config{
		Algorithm:              c.Algorithm,
		Warmup:                 c.Warmup,
		Draws:                  c.Draws,
		Chains:                 c.Chains,
		Parallelism:            c.Parallelism,
		TargetAccept:           c.TargetAccept,
		Seed:                   c.Seed,
		MaxConsecutiveFailures: c.MaxConsecutiveFailures,
		TuneInterval:           c.TuneInterval,
		InitialScale:           c.InitialScale,
		LeapfrogSteps:          c.LeapfrogSteps,
	}
}

// ApplyOverrides returns cfg with the set override fields replaced
func ApplyOverrides(cfg sampler.Config, o *domain.SamplerOverrides) sampler.Config {
	if o == nil {
		return cfg
	}
	if o.Algorithm != "" {
		cfg.Algorithm = o.Algorithm
	}
	if o.Warmup != nil {
		cfg.Warmup = *o.Warmup
	}
	if o.Draws != nil {
		cfg.Draws = *o.Draws
	}
	if o.Chains != nil {
		cfg.Chains = *o.Chains
	}
	if o.Seed != nil {
		cfg.Seed = *o.Seed
	}
	if o.TargetAccept != nil {
		cfg.TargetAccept = *o.TargetAccept
	}
	return cfg
}

// Defaults returns the sampler defaults
func (s *InferenceService) Defaults() sampler.Config {
	return s.defaults
}

// resolveModelPath keeps submitted paths inside the model directory.
func (s *InferenceService) resolveModelPath(path string) (string, error) {
	if s.modelDir == "" {
		return path, nil
	}
	if filepath.IsAbs(path) {
		return "", apperrors.Validation("model path must be relative to the model directory")
	}
	full := filepath.Join(s.modelDir, path)
	rel, err := filepath.Rel(s.modelDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperrors.Validation("model path escapes the model directory")
	}
	return full, nil
}

// Submit validates input and records a pending run for later execution.
func (s *InferenceService) Submit(ctx context.Context, input *domain.CreateRunInput) (*domain.Run, error) {
	if s.runs == nil {
		return nil, apperrors.Internal("run persistence is not configured")
	}
	if err := validator.Validate(input); err != nil {
		return nil, apperrors.Validation(err.Error())
	}
	path, err := s.resolveModelPath(input.ModelPath)
	if err != nil {
		return nil, err
	}
	f, err := model.ParseFile(path)
	if err != nil {
		return nil, err
	}

	req := &RunRequest{
		Name:      input.Name,
		ModelPath: path,
		Sampler:   ApplyOverrides(s.defaults, input.Sampler),
		Export:    input.Export,
	}
	run, err := s.newRun(req, f.Name)
	if err != nil {
		return nil, err
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return run, nil
}

func (s *InferenceService) newRun(req *RunRequest, modelName string) (*domain.Run, error) {
	cfg, err := json.Marshal(req.Sampler)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sampler config: %w", err)
	}
	algorithm := req.Sampler.Algorithm
	if algorithm == "" {
		algorithm = sampler.AlgorithmMetropolis
	}
	name := req.Name
	if name == "" {
		name = modelName
	}
	return &domain.Run{
		ID:        id.NewRunID(),
		Name:      name,
		ModelName: modelName,
		ModelPath: req.ModelPath,
		Algorithm: algorithm,
		Status:    domain.RunStatusPending,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Run builds the model, samples it, summarises the chains and persists and
// exports whatever the service is configured for. Chain aborts are reported
// in the outcome, not as errors; an error means no sampling happened or the
// results could not be stored.
func (s *InferenceService) Run(ctx context.Context, req RunRequest) (*Outcome, error) {
	m, err := s.load(req.ModelPath, s.modelOpts)
	if err != nil {
		s.failRun(ctx, req.RunID, err)
		return nil, err
	}

	run, err := s.newRun(&req, m.Name())
	if err != nil {
		return nil, err
	}
	if req.RunID != nil {
		run.ID = *req.RunID
	} else if s.runs != nil {
		if err := s.runs.Create(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to create run: %w", err)
		}
	}
	log := logger.WithRun(s.logger, run.ID.String())

	opts := []sampler.Option{sampler.WithLogger(log)}
	if req.Observer != nil {
		opts = append(opts, sampler.WithObserver(req.Observer))
	}
	driver, err := sampler.NewDriver(m, req.Sampler, opts...)
	if err != nil {
		s.failRun(ctx, &run.ID, err)
		return nil, err
	}
	run.Algorithm = driver.Algorithm().Name

	if s.runs != nil {
		if err := s.runs.UpdateStatus(ctx, run.ID, domain.RunStatusRunning, ""); err != nil {
			return nil, fmt.Errorf("failed to mark run running: %w", err)
		}
	}
	started := time.Now().UTC()
	run.StartedAt = &started

	done := metrics.RunStarted()
	result := driver.Run(ctx)
	done()

	// A cancelled run still stores its partial draws and reaches a terminal
	// status; nothing after sampling may use ctx.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if ctx.Err() != nil {
		log.Warn("run cancelled, storing partial results", zap.Error(ctx.Err()))
	}

	run.Status = result.Status()
	run.Summary = diagnostics.SummarizeChains(result.Chains, s.hdiProb)
	var aborted []string
	for _, c := range result.Chains {
		run.Chains = append(run.Chains, domain.NewChainOutcome(run.ID, c))
		if c.State == domain.ChainStateAborted {
			aborted = append(aborted, fmt.Sprintf("chain %d: %s", c.Chain, c.AbortReason))
			s.notifier.ChainAborted(pctx, run, c)
		}
	}
	run.Error = strings.Join(aborted, "; ")
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	out := &Outcome{Run: run, Result: result}
	traces := result.Traces()

	// Draws go in before the run is marked finished so readers never see a
	// finished run without its draws.
	if s.draws != nil {
		if err := s.draws.InsertTraces(pctx, run.ID, traces); err != nil {
			err = fmt.Errorf("failed to store draws: %w", err)
			s.failRun(pctx, &run.ID, err)
			return out, err
		}
	}
	if req.Export && s.exporter != nil {
		res, err := s.exporter.Export(pctx, run.ID.String(), traces, run.Summary)
		if err != nil {
			log.Error("export failed", zap.Error(err))
		} else {
			out.Export = res
			run.ExportURI = res.TraceURI
		}
	}
	if s.runs != nil {
		if err := s.runs.SaveResults(pctx, run); err != nil {
			err = fmt.Errorf("failed to save run results: %w", err)
			s.failRun(pctx, &run.ID, err)
			return out, err
		}
	}

	log.Info("run finished",
		zap.String("status", string(run.Status)),
		zap.Int("completed_chains", result.Completed()),
		zap.Duration("duration", result.Duration),
	)
	return out, nil
}

func (s *InferenceService) failRun(ctx context.Context, id *uuid.UUID, cause error) {
	if s.runs == nil || id == nil {
		return
	}
	if err := s.runs.UpdateStatus(ctx, *id, domain.RunStatusFailed, cause.Error()); err != nil {
		s.logger.Error("failed to mark run failed", zap.String("run_id", id.String()), zap.Error(err))
	}
}

// Execute runs a run previously recorded by Submit.
func (s *InferenceService) Execute(ctx context.Context, id uuid.UUID, exportRun bool) (*Outcome, error) {
	if s.runs == nil {
		return nil, apperrors.Internal("run persistence is not configured")
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != domain.RunStatusPending {
		return nil, apperrors.Conflict("run " + id.String() + " is " + string(run.Status))
	}

	cfg := s.defaults
	if len(run.Config) > 0 {
		if err := json.Unmarshal(run.Config, &cfg); err != nil {
			return nil, apperrors.Internal("stored sampler config is invalid").WithError(err)
		}
	}
	return s.Run(ctx, RunRequest{
		RunID:     &run.ID,
		Name:      run.Name,
		ModelPath: run.ModelPath,
		Sampler:   cfg,
		Export:    exportRun,
	})
}

// Get retrieves a run by ID
func (s *InferenceService) Get(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	if s.runs == nil {
		return nil, apperrors.Internal("run persistence is not configured")
	}
	return s.runs.GetByID(ctx, id)
}

// List retrieves runs newest first
func (s *InferenceService) List(ctx context.Context, filter *domain.RunFilter, limit int, cursor string) (*domain.RunList, error) {
	if s.runs == nil {
		return nil, apperrors.Internal("run persistence is not configured")
	}
	return s.runs.List(ctx, filter, limit, cursor)
}

// Traces loads the stored draws of a run
func (s *InferenceService) Traces(ctx context.Context, id uuid.UUID) (map[int]*domain.Trace, error) {
	if s.draws == nil {
		return nil, apperrors.Internal("draw storage is not configured")
	}
	return s.draws.Traces(ctx, id)
}

// Export writes the stored draws and summary of a finished run.
func (s *InferenceService) Export(ctx context.Context, id uuid.UUID) (*export.Result, error) {
	if s.exporter == nil {
		return nil, apperrors.Internal("export is not configured")
	}
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.IsFinished() {
		return nil, apperrors.Conflict("run " + id.String() + " has not finished")
	}
	traces, err := s.Traces(ctx, id)
	if err != nil {
		return nil, err
	}
	summary := run.Summary
	if summary == nil {
		summary = diagnostics.SummarizeTraces(traces, s.hdiProb)
	}
	return s.exporter.Export(ctx, id.String(), traces, summary)
}

// Predictive re-runs the forward model of a finished run at samples of its
// stored draws. A nil seed reuses the run's sampler seed.
func (s *InferenceService) Predictive(ctx context.Context, id uuid.UUID, samples int, seed *uint64) (*domain.PredictiveSummary, error) {
	run, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !run.Status.IsFinished() {
		return nil, apperrors.Conflict("run " + id.String() + " has not finished")
	}

	cfg := s.defaults
	if len(run.Config) > 0 {
		if err := json.Unmarshal(run.Config, &cfg); err != nil {
			return nil, apperrors.Internal("stored sampler config is invalid").WithError(err)
		}
	}
	selection := cfg.Seed
	if seed != nil {
		selection = *seed
	}
	// Evaluate as many draws at once as the run evaluated chains.
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = cfg.Chains
	}

	traces, err := s.Traces(ctx, id)
	if err != nil {
		return nil, err
	}
	m, err := s.load(run.ModelPath, s.modelOpts)
	if err != nil {
		return nil, err
	}

	summary, err := diagnostics.Predictive(ctx, m, traces, diagnostics.PredictiveConfig{
		Samples:     samples,
		Seed:        selection,
		Parallelism: parallelism,
	})
	if err != nil {
		return nil, err
	}
	logger.WithRun(s.logger, id.String()).Info("posterior predictive computed",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("failed", summary.Failed),
		zap.Uint64("seed", selection),
	)
	return summary, nil
}
