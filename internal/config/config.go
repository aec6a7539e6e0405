package config

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Sampler    SamplerConfig    `mapstructure:"sampler"`
	Evaluator  EvaluatorConfig  `mapstructure:"evaluator"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Export     ExportConfig     `mapstructure:"export"`
	Server     ServerConfig     `mapstructure:"server"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Worker     WorkerConfig     `mapstructure:"worker"`
	Log        LogConfig        `mapstructure:"log"`
	Sentry     SentryConfig     `mapstructure:"sentry"`
}

// SamplerConfig holds MCMC driver configuration
type SamplerConfig struct {
	Algorithm    string  `mapstructure:"algorithm" validate:"oneof=metropolis hmc"`
	Warmup       int     `mapstructure:"warmup" validate:"min=0"`
	Draws        int     `mapstructure:"draws" validate:"min=1"`
	Chains       int     `mapstructure:"chains" validate:"min=1,max=64"`
	Parallelism  int     `mapstructure:"parallelism" validate:"min=0"`
	TargetAccept float64 `mapstructure:"target_accept" validate:"gt=0,lt=1"`
	Seed         uint64  `mapstructure:"seed"`
	// MaxConsecutiveFailures aborts a chain after this many back-to-back failed evaluations.
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures" validate:"min=1"`
	TuneInterval           int     `mapstructure:"tune_interval" validate:"min=1"`
	InitialScale           float64 `mapstructure:"initial_scale" validate:"gt=0"`
	LeapfrogSteps          int     `mapstructure:"leapfrog_steps" validate:"min=1"`
}

// EvaluatorConfig holds defaults for external forward-model processes
type EvaluatorConfig struct {
	WorkspaceRoot string        `mapstructure:"workspace_root" validate:"required"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	// CaptureBytes bounds how much of stdout/stderr is kept for diagnostics.
	CaptureBytes int `mapstructure:"capture_bytes" validate:"min=0"`
}

// CacheConfig holds evaluation cache configuration
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// ExportConfig holds trace export configuration
type ExportConfig struct {
	Dir      string `mapstructure:"dir"`
	UseMinIO bool   `mapstructure:"use_minio"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port" validate:"min=0,max=65535"`
	Env  string `mapstructure:"env"`
	// ModelDir restricts model paths submitted through the API.
	ModelDir string `mapstructure:"model_dir"`
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PostgresConfig holds PostgreSQL configuration
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// DSN returns the PostgreSQL connection string
func (c PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		c.User, c.Password, net.JoinHostPort(c.Host, strconv.Itoa(c.Port)), c.Database, c.SSLMode)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// MinIOConfig holds MinIO configuration
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
}

// WorkerConfig holds background worker configuration
type WorkerConfig struct {
	Concurrency   int           `mapstructure:"concurrency" validate:"min=1"`
	QueueCritical string        `mapstructure:"queue_critical"`
	QueueDefault  string        `mapstructure:"queue_default"`
	QueueLow      string        `mapstructure:"queue_low"`
	RunTimeout    time.Duration `mapstructure:"run_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// SentryConfig holds error reporting configuration
type SentryConfig struct {
	DSN         string  `mapstructure:"dsn"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
	Environment string  `mapstructure:"environment"`
}

// IsProduction returns true if running in production
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// IsDevelopment returns true if running in development
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// ChainParallelism returns the number of chains run at once
func (c SamplerConfig) ChainParallelism() int {
	if c.Parallelism <= 0 || c.Parallelism > c.Chains {
		return c.Chains
	}
	return c.Parallelism
}
