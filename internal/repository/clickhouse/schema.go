package clickhouse

import (
	"context"
	"fmt"

	"github.com/ynkmn/reactoruq/internal/pkg/database"
)

const drawsTable = `
	CREATE TABLE IF NOT EXISTS draws (
		run_id            UUID,
		chain             UInt16,
		iteration         UInt32,
		names             Array(String),
		values            Array(Float64),
		log_likelihood    Float64,
		log_posterior     Float64,
		accepted          Bool,
		evaluation_failed Bool,
		created_at        DateTime64(3) DEFAULT now64(3)
	)
	ENGINE = MergeTree
	ORDER BY (run_id, chain, iteration)
`

// Migrate creates the draws table when it does not exist.
func Migrate(ctx context.Context, db *database.ClickHouseDB) error {
	if err := db.Exec(ctx, drawsTable); err != nil {
		return fmt.Errorf("failed to apply clickhouse schema: %w", err)
	}
	return nil
}
