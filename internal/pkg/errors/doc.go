// Package errors provides application error types for reactoruq.
//
// This package defines:
//   - AppError type with error classification
//   - Constructors for forward-model evaluation failures
//   - Error type checking helpers
//   - HTTP status code mapping for the API
//
// # Evaluation Failures
//
// Three codes describe a single failed forward-model call. They are transient:
// the likelihood scores them with a penalty and the sampler rejects the proposal.
//
//   - ProcessFailure: nonzero exit, timeout or spawn failure
//   - OutputMissing: output artifact absent or empty
//   - OutputMalformed: unparsable output or wrong vector length
//
// # Fatal Errors
//
//   - ConsecutiveFailureLimit: a chain hit its failure limit and was aborted
//   - Configuration: the model or sampler cannot run as configured
//   - Cancelled: the run context was cancelled between iterations
//
// # Usage
//
//	if apperrors.IsEvaluationFailure(err) {
//	    return PenaltyLogLikelihood
//	}
package errors
