// Package domain contains the core entities and types for reactoruq.
//
// This package defines:
//   - Parameter, exogenous and observation vectors
//   - Evaluation handles naming one forward-model call
//   - Draws, traces and per-chain results
//   - Persisted runs and their summaries
//
// Domain types are persistence-agnostic. Vectors handed to an evaluator are
// copies; exogenous inputs are shared read-only by every evaluation of a run.
//
// # Chain Lifecycle
//
//	initialized -> warming_up -> sampling -> completed
//	     \______________\____________\-----> aborted
//
// # Naming Conventions
//
// Types ending in "Input" are used for create operations.
// Types ending in "Filter" are used for query operations.
package domain
