package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when the circuit breaker is half-open and already probing
	ErrTooManyRequests = errors.New("too many requests, circuit breaker is half-open")
)

// State represents the circuit breaker state
type State int

const (
	// StateClosed allows requests to pass through
	StateClosed State = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows a limited number of probe requests
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds circuit breaker configuration
type Config struct {
	// Name of the circuit breaker (for logging/metrics)
	Name string
	// MaxFailures is the number of consecutive failures that opens the circuit
	MaxFailures int
	// Timeout is how long to wait before transitioning from open to half-open
	Timeout time.Duration
	// Latched breakers stay open once tripped; Timeout is ignored.
	Latched bool
	// MaxHalfOpenRequests is the number of requests allowed in half-open state
	MaxHalfOpenRequests int
	// OnStateChange is called synchronously, outside the lock, when the state changes
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default circuit breaker configuration
func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		Timeout:             30 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// LatchedConfig returns a breaker that trips permanently after maxFailures
// consecutive failures. Used to bound failures of a single sampling chain.
func LatchedConfig(name string, maxFailures int) Config {
	return Config{
		Name:        name,
		MaxFailures: maxFailures,
		Latched:     true,
	}
}

// CircuitBreaker counts consecutive failures and rejects requests once the
// configured limit is reached.
type CircuitBreaker struct {
	config Config

	mu               sync.Mutex
	state            State
	failures         int
	totalFailures    int
	successes        int
	lastFailureTime  time.Time
	halfOpenRequests int

	now func() time.Time
}

// New creates a new circuit breaker with the given configuration
func New(config Config) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxHalfOpenRequests <= 0 {
		config.MaxHalfOpenRequests = 1
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Execute runs the given function with circuit breaker protection
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.Allow(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	cb.Record(err)
	return err
}

// ExecuteWithResult runs the given function and returns its result with circuit breaker protection
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T

	if err := cb.Allow(); err != nil {
		return zero, err
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	result, err := fn()
	cb.Record(err)
	return result, err
}

// Allow checks whether a request may proceed. Callers that are allowed must
// report the outcome with Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var change func()
	defer func() {
		cb.mu.Unlock()
		if change != nil {
			change()
		}
	}()

	switch cb.state {
	case StateOpen:
		if cb.config.Latched || cb.now().Sub(cb.lastFailureTime) < cb.config.Timeout {
			return ErrCircuitOpen
		}
		change = cb.transitionTo(StateHalfOpen)
		cb.halfOpenRequests++
		return nil

	case StateHalfOpen:
		if cb.halfOpenRequests >= cb.config.MaxHalfOpenRequests {
			return ErrTooManyRequests
		}
		cb.halfOpenRequests++
	}
	return nil
}

// Record reports the outcome of an allowed request. A nil error is a success.
// It returns the state after recording.
func (cb *CircuitBreaker) Record(err error) State {
	cb.mu.Lock()
	var change func()
	if err != nil {
		change = cb.recordFailure()
	} else {
		change = cb.recordSuccess()
	}
	state := cb.state
	cb.mu.Unlock()

	if change != nil {
		change()
	}
	return state
}

func (cb *CircuitBreaker) recordFailure() func() {
	cb.failures++
	cb.totalFailures++
	cb.lastFailureTime = cb.now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.config.MaxFailures {
			return cb.transitionTo(StateOpen)
		}
	case StateHalfOpen:
		return cb.transitionTo(StateOpen)
	}
	return nil
}

func (cb *CircuitBreaker) recordSuccess() func() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.config.MaxHalfOpenRequests {
			return cb.transitionTo(StateClosed)
		}
	}
	return nil
}

// transitionTo changes state and returns the notification to run after unlocking.
func (cb *CircuitBreaker) transitionTo(newState State) func() {
	if cb.state == newState {
		return nil
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateClosed:
		cb.failures = 0
		cb.successes = 0
		cb.halfOpenRequests = 0
	case StateOpen, StateHalfOpen:
		cb.successes = 0
		cb.halfOpenRequests = 0
	}

	if cb.config.OnStateChange == nil {
		return nil
	}
	name, fn := cb.config.Name, cb.config.OnStateChange
	return func() { fn(name, oldState, newState) }
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// TotalFailures returns every failure recorded since creation
func (cb *CircuitBreaker) TotalFailures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.totalFailures
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	change := cb.transitionTo(StateClosed)
	cb.failures = 0
	cb.mu.Unlock()
	if change != nil {
		change()
	}
}

// Registry holds named circuit breakers shared by a process
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a new circuit breaker registry
func NewRegistry() *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns a circuit breaker by name, creating it if it doesn't exist
func (r *Registry) Get(name string, config ...Config) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cfg := DefaultConfig(name)
	if len(config) > 0 {
		cfg = config[0]
		cfg.Name = name
	}

	cb := New(cfg)
	r.breakers[name] = cb
	return cb
}

// BreakerStats is a snapshot of one breaker
type BreakerStats struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Stats returns statistics for all circuit breakers, sorted by name
func (r *Registry) Stats() []BreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]BreakerStats, 0, len(r.breakers))
	for name, cb := range r.breakers {
		stats = append(stats, BreakerStats{
			Name:     name,
			State:    cb.State().String(),
			Failures: cb.Failures(),
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}
