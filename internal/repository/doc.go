// Package repository contains the persistence implementations for
// reactoruq runs.
//
// Repository interfaces are defined by the consuming service; the
// subpackages hold the concrete stores:
//   - postgres: run records, effective sampler config and per-chain outcomes
//   - clickhouse: posterior draws, one row per chain, iteration and parameter
//
// Evaluation caching lives in pkg/database on top of Redis.
//
// All implementations are safe for concurrent use. Connection pools are
// managed at the database layer.
package repository
