package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	apperrors "github.com/ynkmn/reactoruq/internal/pkg/errors"
	"github.com/ynkmn/reactoruq/internal/validator"
)

// EnvPrefix prefixes every environment override, e.g. REACTORUQ_SAMPLER_DRAWS.
const EnvPrefix = "REACTORUQ"

// ConfigFileEnv names the variable holding the config file path when none is
// passed to Load.
const ConfigFileEnv = EnvPrefix + "_CONFIG"

// Load loads configuration from defaults, an optional YAML file and the environment.
// An empty path falls back to $REACTORUQ_CONFIG, then searches ./config.yaml,
// ./config/config.yaml and /etc/reactoruq; a missing file is only an error
// when a path is given explicitly.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigFileEnv)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Configuration("failed to read config file " + path).WithError(err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/reactoruq")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, apperrors.Configuration("failed to read config file").WithError(err)
			}
		}
	}

	cfg := fromViper(v)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration with only built-in defaults applied.
func Defaults() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	var cfg Config

	// Sampler
	cfg.Sampler.Algorithm = v.GetString("sampler.algorithm")
	cfg.Sampler.Warmup = v.GetInt("sampler.warmup")
	cfg.Sampler.Draws = v.GetInt("sampler.draws")
	cfg.Sampler.Chains = v.GetInt("sampler.chains")
	cfg.Sampler.Parallelism = v.GetInt("sampler.parallelism")
	cfg.Sampler.TargetAccept = v.GetFloat64("sampler.target_accept")
	cfg.Sampler.Seed = v.GetUint64("sampler.seed")
	cfg.Sampler.MaxConsecutiveFailures = v.GetInt("sampler.max_consecutive_failures")
	cfg.Sampler.TuneInterval = v.GetInt("sampler.tune_interval")
	cfg.Sampler.InitialScale = v.GetFloat64("sampler.initial_scale")
	cfg.Sampler.LeapfrogSteps = v.GetInt("sampler.leapfrog_steps")

	// Evaluator
	cfg.Evaluator.WorkspaceRoot = v.GetString("evaluator.workspace_root")
	cfg.Evaluator.Timeout = v.GetDuration("evaluator.timeout")
	cfg.Evaluator.CaptureBytes = v.GetInt("evaluator.capture_bytes")

	// Cache
	cfg.Cache.Enabled = v.GetBool("cache.enabled")
	cfg.Cache.TTL = v.GetDuration("cache.ttl")
	cfg.Cache.Prefix = v.GetString("cache.prefix")

	// Export
	cfg.Export.Dir = v.GetString("export.dir")
	cfg.Export.UseMinIO = v.GetBool("export.use_minio")

	// Server
	cfg.Server.Host = v.GetString("server.host")
	cfg.Server.Port = v.GetInt("server.port")
	cfg.Server.Env = v.GetString("server.env")
	cfg.Server.ModelDir = v.GetString("server.model_dir")

	// PostgreSQL
	cfg.Postgres.Host = v.GetString("postgres.host")
	cfg.Postgres.Port = v.GetInt("postgres.port")
	cfg.Postgres.User = v.GetString("postgres.user")
	cfg.Postgres.Password = v.GetString("postgres.password")
	cfg.Postgres.Database = v.GetString("postgres.database")
	cfg.Postgres.SSLMode = v.GetString("postgres.ssl_mode")
	cfg.Postgres.MaxConns = v.GetInt32("postgres.max_conns")
	cfg.Postgres.MinConns = v.GetInt32("postgres.min_conns")

	// ClickHouse
	cfg.ClickHouse.Host = v.GetString("clickhouse.host")
	cfg.ClickHouse.Port = v.GetInt("clickhouse.port")
	cfg.ClickHouse.User = v.GetString("clickhouse.user")
	cfg.ClickHouse.Password = v.GetString("clickhouse.password")
	cfg.ClickHouse.Database = v.GetString("clickhouse.database")

	// Redis
	cfg.Redis.Host = v.GetString("redis.host")
	cfg.Redis.Port = v.GetInt("redis.port")
	cfg.Redis.Password = v.GetString("redis.password")
	cfg.Redis.DB = v.GetInt("redis.db")

	// MinIO
	cfg.MinIO.Endpoint = v.GetString("minio.endpoint")
	cfg.MinIO.AccessKey = v.GetString("minio.access_key")
	cfg.MinIO.SecretKey = v.GetString("minio.secret_key")
	cfg.MinIO.UseSSL = v.GetBool("minio.use_ssl")
	cfg.MinIO.Bucket = v.GetString("minio.bucket")

	// Worker
	cfg.Worker.Concurrency = v.GetInt("worker.concurrency")
	cfg.Worker.QueueCritical = v.GetString("worker.queue_critical")
	cfg.Worker.QueueDefault = v.GetString("worker.queue_default")
	cfg.Worker.QueueLow = v.GetString("worker.queue_low")
	cfg.Worker.RunTimeout = v.GetDuration("worker.run_timeout")

	// Logging
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")

	// Sentry
	cfg.Sentry.DSN = v.GetString("sentry.dsn")
	cfg.Sentry.SampleRate = v.GetFloat64("sentry.sample_rate")
	cfg.Sentry.Environment = v.GetString("sentry.environment")

	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Sampler defaults
	v.SetDefault("sampler.algorithm", "metropolis")
	v.SetDefault("sampler.warmup", 1000)
	v.SetDefault("sampler.draws", 2000)
	v.SetDefault("sampler.chains", 2)
	v.SetDefault("sampler.parallelism", 0)
	v.SetDefault("sampler.target_accept", 0.8)
	v.SetDefault("sampler.seed", 42)
	v.SetDefault("sampler.max_consecutive_failures", 50)
	v.SetDefault("sampler.tune_interval", 100)
	v.SetDefault("sampler.initial_scale", 1.0)
	v.SetDefault("sampler.leapfrog_steps", 10)

	// Evaluator defaults
	v.SetDefault("evaluator.workspace_root", filepath.Join(os.TempDir(), "reactoruq"))
	v.SetDefault("evaluator.timeout", "300s")
	v.SetDefault("evaluator.capture_bytes", 4096)

	// Cache defaults
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.prefix", "reactoruq:eval:")

	// Export defaults
	v.SetDefault("export.dir", "exports")
	v.SetDefault("export.use_minio", false)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")
	v.SetDefault("server.model_dir", "models")

	// PostgreSQL defaults
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "reactoruq")
	v.SetDefault("postgres.password", "reactoruq")
	v.SetDefault("postgres.database", "reactoruq")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)

	// ClickHouse defaults
	v.SetDefault("clickhouse.host", "localhost")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.user", "reactoruq")
	v.SetDefault("clickhouse.password", "reactoruq")
	v.SetDefault("clickhouse.database", "reactoruq")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// MinIO defaults
	v.SetDefault("minio.endpoint", "localhost:9002")
	v.SetDefault("minio.access_key", "reactoruq")
	v.SetDefault("minio.secret_key", "reactoruq123")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "reactoruq-traces")

	// Worker defaults
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queue_critical", "critical")
	v.SetDefault("worker.queue_default", "default")
	v.SetDefault("worker.queue_low", "low")
	v.SetDefault("worker.run_timeout", "24h")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Sentry defaults
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("sentry.environment", "development")
}

func validate(cfg *Config) error {
	if err := validator.Validate(cfg); err != nil {
		return apperrors.Configuration("invalid configuration").WithError(err)
	}
	if cfg.Export.UseMinIO && cfg.MinIO.Bucket == "" {
		return apperrors.Configuration("export.use_minio requires minio.bucket")
	}
	return nil
}
