// Package id provides identifier generation for reactoruq.
//
// This package generates:
//   - UUID v4 identifiers for runs
//   - Evaluation handles that name the transient scope of one forward-model call
//
// # Evaluation Handles
//
// A handle combines the process id, a process-wide invocation counter, the
// chain index and a random nonce. The counter alone makes handles unique within
// a process; the nonce guards against pid reuse across processes sharing a
// scratch directory.
//
// All functions are safe for concurrent use.
package id
