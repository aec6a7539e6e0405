// Package app wires configuration into the connections and services shared
// by the reactoruq binaries.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/export"
	"github.com/ynkmn/reactoruq/internal/isolation"
	"github.com/ynkmn/reactoruq/internal/model"
	"github.com/ynkmn/reactoruq/internal/pkg/circuitbreaker"
	"github.com/ynkmn/reactoruq/internal/pkg/database"
	"github.com/ynkmn/reactoruq/internal/pkg/logger"
	chrepo "github.com/ynkmn/reactoruq/internal/repository/clickhouse"
	pgrepo "github.com/ynkmn/reactoruq/internal/repository/postgres"
	"github.com/ynkmn/reactoruq/internal/service"
)

// Version is set at build time
var Version = "0.1.0"

// Breakers are shared by every model built in the process, so runs agree on
// whether the cache store is reachable.
var Breakers = circuitbreaker.NewRegistry()

// NewLogger builds the process logger from configuration
func NewLogger(cfg config.LogConfig) (*zap.Logger, error) {
	return logger.New(logger.Config{Level: cfg.Level, Format: cfg.Format, Output: os.Stderr})
}

// Runtime holds the connections shared by the server and the worker
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Postgres   *database.PostgresDB
	ClickHouse *database.ClickHouseDB
	Redis      *database.RedisDB
	MinIO      *minio.Client
}

// Connect opens every store and applies schema migrations.
func Connect(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, Logger: log}

	pg, err := database.NewPostgres(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	rt.Postgres = pg

	ch, err := database.NewClickHouse(ctx, cfg.ClickHouse, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize ClickHouse: %w", err)
	}
	rt.ClickHouse = ch

	rdb, err := database.NewRedis(ctx, cfg.Redis, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	rt.Redis = rdb

	if cfg.Export.UseMinIO {
		client, err := export.NewMinIOClient(ctx, cfg.MinIO, log)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.MinIO = client
	}

	if err := pgrepo.Migrate(ctx, pg); err != nil {
		rt.Close()
		return nil, err
	}
	if err := chrepo.Migrate(ctx, ch); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// Close closes all connections
func (rt *Runtime) Close() {
	if rt.Postgres != nil {
		rt.Postgres.Close()
	}
	if rt.ClickHouse != nil {
		_ = rt.ClickHouse.Close()
	}
	if rt.Redis != nil {
		_ = rt.Redis.Close()
	}
}

// ModelOptions builds the runtime dependencies of models. rdb may be nil, in
// which case evaluations are not cached.
func ModelOptions(cfg *config.Config, log *zap.Logger, rdb *database.RedisDB) (model.Options, error) {
	ws, err := isolation.NewWorkspace(cfg.Evaluator.WorkspaceRoot)
	if err != nil {
		return model.Options{}, err
	}
	opts := model.Options{
		Workspace:      ws,
		Logger:         log,
		DefaultTimeout: cfg.Evaluator.Timeout,
		CaptureBytes:   cfg.Evaluator.CaptureBytes,
	}
	if cfg.Cache.Enabled && rdb != nil {
		opts.Cache = database.NewCache(rdb.Client, cfg.Cache.TTL)
		opts.CacheBreaker = Breakers.Get("evaluation-cache")
		opts.CachePrefix = cfg.Cache.Prefix
	}
	return opts, nil
}

// NewExporter writes to MinIO when a client is given and to the export
// directory otherwise.
func NewExporter(cfg *config.Config, log *zap.Logger, client *minio.Client) *export.Exporter {
	if client != nil {
		return export.NewExporter(export.NewMinIOStore(client, cfg.MinIO.Bucket), log)
	}
	return export.NewExporter(export.NewLocalStore(cfg.Export.Dir), log)
}

// InferenceService builds the persisted inference service.
func (rt *Runtime) InferenceService(notifier service.Notifier) (*service.InferenceService, error) {
	opts, err := ModelOptions(rt.Config, rt.Logger, rt.Redis)
	if err != nil {
		return nil, err
	}
	return service.NewInferenceService(
		service.SamplerConfig(rt.Config.Sampler),
		opts,
		service.WithRunRepository(pgrepo.NewRunRepository(rt.Postgres)),
		service.WithDrawRepository(chrepo.NewDrawRepository(rt.ClickHouse)),
		service.WithExporter(NewExporter(rt.Config, rt.Logger, rt.MinIO)),
		service.WithNotifier(notifier),
		service.WithModelDir(rt.Config.Server.ModelDir),
		service.WithLogger(rt.Logger),
	), nil
}
