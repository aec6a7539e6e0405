package sampler

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/evaluator"
	"github.com/ynkmn/reactoruq/internal/pkg/circuitbreaker"
	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
)

// maxSupportRedraws bounds initial-point redraws that land outside the prior
// support. They do not evaluate the model and so do not count as failures.
const maxSupportRedraws = 1000

// chain runs one Markov chain through its state machine.
type chain struct {
	id        int
	seed      uint64
	rng       *rand.Rand
	cfg       Config
	algorithm string
	target    Target
	kernel    Kernel
	breaker   *circuitbreaker.CircuitBreaker
	observer  Observer
	logger    *zap.Logger

	state    domain.ChainState
	result   *domain.ChainResult
	cur      State
	accepted int
}

func newChain(id int, seed uint64, cfg Config, algo Algorithm, target Target, obs Observer, log *zap.Logger) *chain {
	return &chain{
		id:        id,
		seed:      seed,
		rng:       rand.New(rand.NewPCG(seed, uint64(id))),
		cfg:       cfg,
		algorithm: algo.Name,
		target:    target,
		kernel:    algo.newKernel(target, cfg),
		breaker: circuitbreaker.New(circuitbreaker.LatchedConfig(
			"chain-"+strconv.Itoa(id), cfg.MaxConsecutiveFailures)),
		observer: obs,
		logger:   log.With(zap.Int("chain", id)),
		state:    domain.ChainStateInitialized,
		result: &domain.ChainResult{
			Chain:          id,
			Seed:           seed,
			State:          domain.ChainStateInitialized,
			Trace:          domain.NewTrace(target.Names(), cfg.Draws),
			DrawsRequested: cfg.Draws,
		},
	}
}

func (c *chain) transition(next domain.ChainState) {
	if !c.state.CanTransitionTo(next) {
		c.logger.Error("invalid chain transition",
			zap.String("from", string(c.state)),
			zap.String("to", string(next)),
		)
		return
	}
	prev := c.state
	c.state = next
	c.result.State = next
	c.observer.OnStateChange(c.id, prev, next)
}

func (c *chain) abort(iteration int, err error) *domain.ChainResult {
	c.result.AbortIteration = iteration
	c.result.AbortReason = err.Error()
	c.result.Err = err
	c.transition(domain.ChainStateAborted)
	c.logger.Warn("chain aborted",
		zap.Int("iteration", iteration),
		zap.Int("draws", c.result.Trace.Len()),
		zap.Error(err),
	)
	return c.result
}

// record feeds one evaluation outcome to the failure breaker. It returns a
// non-nil error when the chain must stop.
func (c *chain) record(iteration int, err error) error {
	if err != nil && !apperrors.IsEvaluationFailure(err) {
		return err
	}
	if err != nil {
		c.result.FailedEvaluations++
		c.logger.Debug("evaluation failed",
			zap.Int("iteration", iteration),
			zap.Int("consecutive", c.breaker.Failures()+1),
			zap.Error(err),
		)
	}
	if c.breaker.Record(err) == circuitbreaker.StateOpen {
		return apperrors.ConsecutiveFailureLimit(c.id, iteration, c.cfg.MaxConsecutiveFailures).WithError(err)
	}
	return nil
}

func (c *chain) checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Cancelled("chain " + strconv.Itoa(c.id) + " cancelled").WithError(err)
	}
	return nil
}

// initialize finds a starting point the model can score.
func (c *chain) initialize(ctx context.Context) error {
	theta, explicit := c.target.Initial()
	redraws := 0
	for attempt := 0; ; attempt++ {
		if err := c.checkContext(ctx); err != nil {
			return err
		}
		if attempt > 0 || !explicit {
			theta = c.target.SamplePrior(c.rng)
		}

		d := c.kernel.Init(ctx, theta)
		if d.OutOfSupport() {
			redraws++
			if redraws > maxSupportRedraws {
				return apperrors.Configuration("no starting point with positive prior density found")
			}
			continue
		}
		c.result.Evaluations++
		if err := c.record(0, d.Err); err != nil {
			return err
		}
		if d.Err == nil {
			c.cur = State{Theta: theta, Density: d}
			return nil
		}
	}
}

// step runs one kernel step and folds its outcome into the result.
func (c *chain) step(ctx context.Context, iteration int) (Transition, error) {
	if err := c.checkContext(ctx); err != nil {
		return Transition{}, err
	}
	if err := c.breaker.Allow(); err != nil {
		return Transition{}, apperrors.ConsecutiveFailureLimit(c.id, iteration, c.cfg.MaxConsecutiveFailures)
	}

	t := c.kernel.Step(ctx, c.cur, c.rng)
	c.result.Evaluations += t.Evaluations
	if t.Err != nil || t.Evaluations > 0 {
		if err := c.record(iteration, t.Err); err != nil {
			return t, err
		}
	}
	c.cur = t.State
	return t, nil
}

func (c *chain) run(ctx context.Context) *domain.ChainResult {
	start := time.Now()
	defer func() {
		c.result.Duration = time.Since(start)
		c.result.StepSize = c.kernel.StepSize()
		if n := c.result.Trace.Len(); n > 0 {
			c.result.AcceptanceRate = float64(c.accepted) / float64(n)
		}
		metrics.RecordChainFinished(c.algorithm, string(c.result.State), c.result.AcceptanceRate)
	}()

	ctx = evaluator.WithChain(ctx, c.id)
	c.observer.OnStateChange(c.id, "", domain.ChainStateInitialized)

	if err := c.initialize(ctx); err != nil {
		return c.abort(0, err)
	}

	c.transition(domain.ChainStateWarmingUp)
	for i := 0; i < c.cfg.Warmup; i++ {
		t, err := c.step(ctx, i)
		if err != nil {
			return c.abort(i, err)
		}
		c.kernel.Adapt(t)
		metrics.RecordIteration(c.algorithm, string(domain.ChainStateWarmingUp))
	}
	c.kernel.EndWarmup()

	c.transition(domain.ChainStateSampling)
	for i := 0; i < c.cfg.Draws; i++ {
		iteration := c.cfg.Warmup + i
		t, err := c.step(ctx, iteration)
		if err != nil {
			return c.abort(iteration, err)
		}
		if t.Accepted {
			c.accepted++
		}
		draw := domain.Draw{
			Iteration:        i,
			Values:           c.cur.Theta,
			LogLikelihood:    c.cur.Density.LogLikelihood,
			LogPosterior:     c.cur.Density.LogPosterior,
			Accepted:         t.Accepted,
			EvaluationFailed: t.Err != nil,
		}
		if err := c.result.Trace.Append(draw); err != nil {
			return c.abort(iteration, apperrors.Internal("cannot append draw").WithError(err))
		}
		c.observer.OnDraw(c.id, draw)
	}

	c.result.Trace.Seal()
	c.transition(domain.ChainStateCompleted)
	c.logger.Info("chain completed",
		zap.Int("draws", c.result.Trace.Len()),
		zap.Int("evaluations", c.result.Evaluations),
		zap.Int("failed_evaluations", c.result.FailedEvaluations),
		zap.Float64("acceptance", float64(c.accepted)/float64(c.cfg.Draws)),
		zap.Float64("step_size", c.kernel.StepSize()),
	)
	return c.result
}
