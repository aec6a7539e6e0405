package postgres

import (
	"context"
	"fmt"

	"github.com/ynkmn/reactoruq/internal/pkg/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id           UUID PRIMARY KEY,
		name         TEXT NOT NULL,
		model_name   TEXT NOT NULL,
		model_path   TEXT NOT NULL,
		algorithm    TEXT NOT NULL,
		status       TEXT NOT NULL,
		config       JSONB,
		error        TEXT NOT NULL DEFAULT '',
		export_uri   TEXT NOT NULL DEFAULT '',
		summary      JSONB,
		created_at   TIMESTAMPTZ NOT NULL,
		started_at   TIMESTAMPTZ,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at DESC, id DESC)`,
	`CREATE INDEX IF NOT EXISTS runs_status_idx ON runs (status)`,
	`CREATE TABLE IF NOT EXISTS chain_results (
		run_id             UUID NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
		chain              INTEGER NOT NULL,
		seed               TEXT NOT NULL,
		state              TEXT NOT NULL,
		draws_requested    INTEGER NOT NULL,
		draws_completed    INTEGER NOT NULL,
		evaluations        INTEGER NOT NULL,
		failed_evaluations INTEGER NOT NULL,
		acceptance_rate    DOUBLE PRECISION NOT NULL,
		step_size          DOUBLE PRECISION NOT NULL,
		abort_iteration    INTEGER NOT NULL DEFAULT 0,
		abort_reason       TEXT NOT NULL DEFAULT '',
		duration_ms        BIGINT NOT NULL,
		PRIMARY KEY (run_id, chain)
	)`,
}

// Migrate creates the run tables when they do not exist.
func Migrate(ctx context.Context, db *database.PostgresDB) error {
	for _, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply postgres schema: %w", err)
		}
	}
	return nil
}
