package domain

import "fmt"

// EvaluationHandle identifies one forward-model invocation. Unique among all
// evaluations active at the same time.
type EvaluationHandle struct {
	PID   int    `json:"pid"`
	Seq   uint64 `json:"seq"`
	Chain int    `json:"chain"`
	Nonce string `json:"nonce"`
}

// String returns a filesystem-safe rendering of the handle.
func (h EvaluationHandle) String() string {
	return fmt.Sprintf("eval-%d-c%d-%d-%s", h.PID, h.Chain, h.Seq, h.Nonce)
}

// EvaluationOutcome classifies the result of one evaluation for metrics and logs.
type EvaluationOutcome string

const (
	EvaluationOutcomeSuccess         EvaluationOutcome = "success"
	EvaluationOutcomeProcessFailure  EvaluationOutcome = "process_failure"
	EvaluationOutcomeOutputMissing   EvaluationOutcome = "output_missing"
	EvaluationOutcomeOutputMalformed EvaluationOutcome = "output_malformed"
	EvaluationOutcomeCancelled       EvaluationOutcome = "cancelled"
	EvaluationOutcomeError           EvaluationOutcome = "error"
)
