package domain

import "time"

// ChainState is the lifecycle state of one sampling chain
type ChainState string

const (
	ChainStateInitialized ChainState = "initialized"
	ChainStateWarmingUp   ChainState = "warming_up"
	ChainStateSampling    ChainState = "sampling"
	ChainStateCompleted   ChainState = "completed"
	ChainStateAborted     ChainState = "aborted"
)

// IsValid checks if the chain state is valid
func (s ChainState) IsValid() bool {
	switch s {
	case ChainStateInitialized, ChainStateWarmingUp, ChainStateSampling,
		ChainStateCompleted, ChainStateAborted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible
func (s ChainState) IsTerminal() bool {
	return s == ChainStateCompleted || s == ChainStateAborted
}

// CanTransitionTo reports whether moving from s to next is allowed.
// Any non-terminal state may abort; otherwise states only move forward.
func (s ChainState) CanTransitionTo(next ChainState) bool {
	if s.IsTerminal() {
		return false
	}
	if next == ChainStateAborted {
		return true
	}
	switch s {
	case ChainStateInitialized:
		return next == ChainStateWarmingUp
	case ChainStateWarmingUp:
		return next == ChainStateSampling
	case ChainStateSampling:
		return next == ChainStateCompleted
	}
	return false
}

// ChainResult is the outcome of one chain
type ChainResult struct {
	Chain          int        `json:"chain"`
	Seed           uint64     `json:"seed"`
	State          ChainState `json:"state"`
	Trace          *Trace     `json:"trace"`
	DrawsRequested int        `json:"drawsRequested"`

	Evaluations       int     `json:"evaluations"`
	FailedEvaluations int     `json:"failedEvaluations"`
	AcceptanceRate    float64 `json:"acceptanceRate"`

	// Tuned proposal scale (random walk) or step size (HMC) at the end of warmup.
	StepSize float64 `json:"stepSize"`

	AbortIteration int    `json:"abortIteration,omitempty"`
	AbortReason    string `json:"abortReason,omitempty"`
	Err            error  `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Completed reports whether the chain produced every requested draw
func (r *ChainResult) Completed() bool {
	return r.State == ChainStateCompleted
}
