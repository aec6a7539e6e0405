package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	"github.com/ynkmn/reactoruq/internal/pkg/metrics"
)

// ClickHouseDB wraps a ClickHouse connection
type ClickHouseDB struct {
	Conn driver.Conn
}

// NewClickHouse creates a new ClickHouse connection
func NewClickHouse(ctx context.Context, cfg config.ClickHouseConfig, log *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	logger.OrNop(log).Info("connected to ClickHouse",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{Conn: conn}, nil
}

// Close closes the connection
func (db *ClickHouseDB) Close() error {
	if db.Conn != nil {
		return db.Conn.Close()
	}
	return nil
}

// Ping checks the connection
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.Conn.Ping(ctx)
}

// PrepareBatch prepares a batch insert
func (db *ClickHouseDB) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return db.Conn.PrepareBatch(ctx, query)
}

// Exec executes a statement and records its metrics
func (db *ClickHouseDB) Exec(ctx context.Context, query string, args ...any) error {
	start := time.Now()
	err := db.Conn.Exec(ctx, query, args...)
	record(operation(query), start, err)
	return err
}

// Select executes a select query and scans results into dest
func (db *ClickHouseDB) Select(ctx context.Context, dest any, query string, args ...any) error {
	start := time.Now()
	err := db.Conn.Select(ctx, dest, query, args...)
	record("select", start, err)
	return err
}

// SendBatch sends a prepared batch and records its metrics
func (db *ClickHouseDB) SendBatch(batch driver.Batch) error {
	start := time.Now()
	err := batch.Send()
	record("insert", start, err)
	return err
}

func record(op string, start time.Time, err error) {
	metrics.RecordDBQuery("clickhouse", op, time.Since(start))
	if err != nil {
		metrics.RecordDBError("clickhouse", op)
	}
}
