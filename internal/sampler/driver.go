// Package sampler drives Markov chains over a model's log-posterior. Each
// chain is an independent state machine with its own random source, so a
// fixed seed reproduces every chain's trace exactly regardless of how the
// chains are scheduled.
package sampler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ynkmn/reactoruq/internal/domain"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
)

// Driver runs the chains of one sampling run.
type Driver struct {
	target    Target
	cfg       Config
	algorithm Algorithm
	observers observers
	logger    *zap.Logger
}

// Option configures a Driver
type Option func(*Driver)

// WithLogger sets the driver logger
func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) {
		d.logger = logger.OrNop(l)
	}
}

// WithObserver adds a progress observer
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// NewDriver validates the configuration against the target. Pairing a
// gradient-based algorithm with a target that has no gradient is a
// configuration error reported here, before any chain starts.
func NewDriver(target Target, cfg Config, opts ...Option) (*Driver, error) {
	if target == nil {
		return nil, apperrors.Configuration("sampler requires a target")
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	algo, err := LookupAlgorithm(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	if algo.RequiresGradient && !target.HasGradient() {
		return nil, apperrors.Configuration("algorithm " + algo.Name + " requires a gradient but the model has none").
			WithDetail("algorithm", algo.Name)
	}
	if len(target.Scales()) != len(target.Names()) {
		return nil, apperrors.Configuration("target scales do not match its parameters")
	}

	d := &Driver{
		target:    target,
		cfg:       cfg,
		algorithm: algo,
		observers: observers{metricsObserver{algorithm: algo.Name}},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Config returns the effective configuration
func (d *Driver) Config() Config {
	return d.cfg
}

// Algorithm returns the selected algorithm
func (d *Driver) Algorithm() Algorithm {
	return d.algorithm
}

// Result holds the outcome of every chain, indexed by chain id.
type Result struct {
	Chains   []*domain.ChainResult
	Duration time.Duration
}

// Traces returns the chain traces keyed by chain id
func (r *Result) Traces() map[int]*domain.Trace {
	out := make(map[int]*domain.Trace, len(r.Chains))
	for _, c := range r.Chains {
		out[c.Chain] = c.Trace
	}
	return out
}

// Completed counts chains that produced every requested draw
func (r *Result) Completed() int {
	n := 0
	for _, c := range r.Chains {
		if c.Completed() {
			n++
		}
	}
	return n
}

// Status summarises the run outcome.
func (r *Result) Status() domain.RunStatus {
	switch n := r.Completed(); {
	case n == len(r.Chains):
		return domain.RunStatusCompleted
	case n > 0:
		return domain.RunStatusPartial
	}
	return domain.RunStatusFailed
}

// ChainSeed derives the seed of one chain from the run seed.
func ChainSeed(seed uint64, chain int) uint64 {
	// splitmix64 finaliser
	z := seed + uint64(chain+1)*0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Run samples every chain. Aborted chains do not stop the others; their
// partial traces and causes are in the result. Cancelling ctx aborts the
// remaining chains at their next iteration boundary.
func (d *Driver) Run(ctx context.Context) *Result {
	start := time.Now()
	results := make([]*domain.ChainResult, d.cfg.Chains)

	d.logger.Info("sampling started",
		zap.String("algorithm", d.algorithm.Name),
		zap.Int("chains", d.cfg.Chains),
		zap.Int("parallelism", d.cfg.parallelism()),
		zap.Int("warmup", d.cfg.Warmup),
		zap.Int("draws", d.cfg.Draws),
		zap.Uint64("seed", d.cfg.Seed),
	)

	var g errgroup.Group
	g.SetLimit(d.cfg.parallelism())
	for i := range results {
		c := newChain(i, ChainSeed(d.cfg.Seed, i), d.cfg, d.algorithm, d.target, d.observers, d.logger)
		g.Go(func() error {
			results[i] = c.run(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{Chains: results, Duration: time.Since(start)}
	d.logger.Info("sampling finished",
		zap.String("status", string(res.Status())),
		zap.Int("completed_chains", res.Completed()),
		zap.Duration("duration", res.Duration),
	)
	return res
}
