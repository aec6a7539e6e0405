package sampler

import (
	"fmt"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
)

// Algorithm names
const (
	AlgorithmMetropolis = "metropolis"
	AlgorithmHMC        = "hmc"
)

// Config controls a sampling run.
type Config struct {
	Algorithm string `json:"algorithm"`
	Warmup    int    `json:"warmup"`
	Draws     int    `json:"draws"`
	Chains    int    `json:"chains"`
	// Parallelism bounds concurrently running chains; 0 runs all at once.
	Parallelism  int     `json:"parallelism"`
	TargetAccept float64 `json:"target_accept"`
	Seed         uint64  `json:"seed"`

	// MaxConsecutiveFailures aborts a chain after exactly this many
	// back-to-back failed evaluations.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
	// TuneInterval is the random-walk scale adaptation window.
	TuneInterval int `json:"tune_interval"`
	// InitialScale multiplies the prior scales for the first proposals.
	InitialScale  float64 `json:"initial_scale"`
	LeapfrogSteps int     `json:"leapfrog_steps"`
}

// DefaultConfig returns the defaults used when a field is left zero.
func DefaultConfig() Config {
	return Config{
		Algorithm:              AlgorithmMetropolis,
		Warmup:                 1000,
		Draws:                  2000,
		Chains:                 2,
		TargetAccept:           0.8,
		Seed:                   42,
		MaxConsecutiveFailures: 50,
		TuneInterval:           100,
		InitialScale:           1.0,
		LeapfrogSteps:          10,
	}
}

// withDefaults fills the fields that have no meaningful zero value.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Algorithm == "" {
		c.Algorithm = d.Algorithm
	}
	if c.TargetAccept == 0 {
		c.TargetAccept = d.TargetAccept
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = d.MaxConsecutiveFailures
	}
	if c.TuneInterval == 0 {
		c.TuneInterval = d.TuneInterval
	}
	if c.InitialScale == 0 {
		c.InitialScale = d.InitialScale
	}
	if c.LeapfrogSteps == 0 {
		c.LeapfrogSteps = d.LeapfrogSteps
	}
	if c.Chains == 0 {
		c.Chains = d.Chains
	}
	return c
}

func (c Config) validate() error {
	switch {
	case c.Warmup < 0:
		return apperrors.Configuration("warmup must not be negative")
	case c.Draws < 1:
		return apperrors.Configuration("draws must be at least 1")
	case c.Chains < 1:
		return apperrors.Configuration("chains must be at least 1")
	case c.Parallelism < 0:
		return apperrors.Configuration("parallelism must not be negative")
	case !(c.TargetAccept > 0 && c.TargetAccept < 1):
		return apperrors.Configuration(fmt.Sprintf("target_accept must be in (0, 1), got %v", c.TargetAccept))
	case c.MaxConsecutiveFailures < 1:
		return apperrors.Configuration("max_consecutive_failures must be at least 1")
	case c.TuneInterval < 1:
		return apperrors.Configuration("tune_interval must be at least 1")
	case !(c.InitialScale > 0):
		return apperrors.Configuration("initial_scale must be positive")
	case c.LeapfrogSteps < 1:
		return apperrors.Configuration("leapfrog_steps must be at least 1")
	}
	return nil
}

func (c Config) parallelism() int {
	if c.Parallelism <= 0 || c.Parallelism > c.Chains {
		return c.Chains
	}
	return c.Parallelism
}
