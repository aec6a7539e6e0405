package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/pkg/database"
)

// getTestDB returns a migrated database for integration tests and skips the
// test when PostgreSQL is not available.
func getTestDB(t *testing.T) *database.PostgresDB {
	t.Helper()
	if os.Getenv("POSTGRES_TEST_HOST") == "" {
		t.Skip("Skipping integration test: POSTGRES_TEST_HOST not set")
	}

	cfg := config.PostgresConfig{
		Host:     os.Getenv("POSTGRES_TEST_HOST"),
		Port:     5432,
		User:     os.Getenv("POSTGRES_TEST_USER"),
		Password: os.Getenv("POSTGRES_TEST_PASS"),
		Database: os.Getenv("POSTGRES_TEST_DB"),
		SSLMode:  "disable",
		MaxConns: 5,
		MinConns: 1,
	}
	if p, err := strconv.Atoi(os.Getenv("POSTGRES_TEST_PORT")); err == nil {
		cfg.Port = p
	}
	if cfg.Database == "" {
		cfg.Database = "test_reactoruq"
	}
	if cfg.User == "" {
		cfg.User = "postgres"
	}

	db, err := database.NewPostgres(context.Background(), cfg, nil)
	if err != nil {
		t.Skipf("Skipping integration test: failed to connect to PostgreSQL: %v", err)
	}
	t.Cleanup(db.Close)
	require.NoError(t, Migrate(context.Background(), db))
	return db
}
