package evaluator

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"hash"
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/domain"
	"github.com/ynkmn/reactoruq/internal/pkg/circuitbreaker"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
)

// Cache stores serialized predictions. Get reports a miss with found=false
// and a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Cached memoizes a deterministic evaluator. Only successful predictions are
// stored. Cache errors go through a circuit breaker and never fail an
// evaluation.
type Cached struct {
	inner       Evaluator
	cache       Cache
	breaker     *circuitbreaker.CircuitBreaker
	prefix      string
	fingerprint string
	logger      *zap.Logger
}

// CacheOptions configures a Cached evaluator.
type CacheOptions struct {
	Breaker *circuitbreaker.CircuitBreaker
	Prefix  string
	// Fingerprint identifies the forward model configuration and data.
	// Evaluators with different fingerprints never share entries.
	Fingerprint string
}

type cachedGradient struct {
	*Cached
	grad GradientEvaluator
}

func (c *cachedGradient) Jacobian(ctx context.Context, params domain.ParameterVector) ([][]float64, error) {
	return c.grad.Jacobian(ctx, params)
}

// NewCached wraps inner with a prediction cache. The result exposes a
// Jacobian whenever inner does.
func NewCached(inner Evaluator, cache Cache, opts CacheOptions, log *zap.Logger) Evaluator {
	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig("evaluation-cache"))
	}
	c := &Cached{
		inner:       inner,
		cache:       cache,
		breaker:     breaker,
		prefix:      opts.Prefix,
		fingerprint: opts.Fingerprint,
		logger:      logger.OrNop(log),
	}
	if g, ok := inner.(GradientEvaluator); ok {
		return &cachedGradient{Cached: c, grad: g}
	}
	return c
}

// Name returns the wrapped evaluator name
func (c *Cached) Name() string {
	return c.inner.Name()
}

// Key returns the cache key of params. Values are keyed by their exact bits.
func (c *Cached) Key(params domain.ParameterVector) string {
	h := sha256.New()
	h.Write([]byte(c.fingerprint))
	h.Write([]byte{0})
	h.Write([]byte(c.inner.Name()))
	var buf [8]byte
	for i, v := range params.Values {
		h.Write([]byte{0})
		h.Write([]byte(params.Names[i]))
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	return c.prefix + hex.EncodeToString(h.Sum(nil))
}

// Evaluate returns a cached prediction or evaluates and stores it.
func (c *Cached) Evaluate(ctx context.Context, params domain.ParameterVector) (domain.PredictedVector, error) {
	key := c.Key(params)

	if pred, ok := c.lookup(ctx, key); ok {
		return pred, nil
	}

	pred, err := c.inner.Evaluate(ctx, params)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, pred)
	return pred, nil
}

func (c *Cached) lookup(ctx context.Context, key string) (domain.PredictedVector, bool) {
	type hit struct {
		value string
		found bool
	}
	res, err := circuitbreaker.ExecuteWithResult(c.breaker, ctx, func() (hit, error) {
		v, found, err := c.cache.Get(ctx, key)
		return hit{v, found}, err
	})
	if err != nil {
		metrics.RecordCacheLookup("error")
		c.logger.Debug("evaluation cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !res.found {
		metrics.RecordCacheLookup("miss")
		return nil, false
	}

	var pred domain.PredictedVector
	if err := json.Unmarshal([]byte(res.value), &pred); err != nil {
		metrics.RecordCacheLookup("error")
		c.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	metrics.RecordCacheLookup("hit")
	return pred, true
}

func (c *Cached) store(ctx context.Context, key string, pred domain.PredictedVector) {
	data, err := json.Marshal(pred)
	if err != nil {
		return
	}
	err = c.breaker.Execute(ctx, func() error {
		return c.cache.Set(ctx, key, string(data))
	})
	if err != nil {
		c.logger.Debug("evaluation cache store failed", zap.Error(err))
	}
}

// Fingerprint accumulates the configuration and data a forward model's
// output depends on, apart from the sampled parameters.
type Fingerprint struct {
	h hash.Hash
}

// NewFingerprint starts an empty fingerprint
func NewFingerprint() *Fingerprint {
	return &Fingerprint{h: sha256.New()}
}

// Add mixes in strings. Each value is length-prefixed so that ("ab", "c")
// and ("a", "bc") differ.
func (f *Fingerprint) Add(values ...string) *Fingerprint {
	for _, v := range values {
		f.h.Write([]byte(strconv.Itoa(len(v))))
		f.h.Write([]byte{':'})
		f.h.Write([]byte(v))
	}
	return f
}

// AddInputs mixes in every exogenous column by name and exact value bits.
func (f *Fingerprint) AddInputs(inputs *domain.ExogenousInputs) *Fingerprint {
	if inputs == nil {
		return f.Add("no-inputs")
	}
	var buf [8]byte
	for _, name := range inputs.Columns() {
		col, _ := inputs.Column(name)
		f.Add(name, strconv.Itoa(len(col)))
		for _, v := range col {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			f.h.Write(buf[:])
		}
	}
	return f
}

// String returns the hex digest
func (f *Fingerprint) String() string {
	return hex.EncodeToString(f.h.Sum(nil))
}
