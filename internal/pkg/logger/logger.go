package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level  string
	Format string
	// Output defaults to stderr so that stdout stays free for command output.
	Output io.Writer
}

// New builds a logger. Unknown levels fall back to info.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// WithRun returns a logger tagged with a run ID
func WithRun(l *zap.Logger, runID string) *zap.Logger {
	return l.With(zap.String("run_id", runID))
}

// WithChain returns a logger tagged with a chain index
func WithChain(l *zap.Logger, chain int) *zap.Logger {
	return l.With(zap.Int("chain", chain))
}

// WithRequestID returns a logger with request ID
func WithRequestID(l *zap.Logger, requestID string) *zap.Logger {
	return l.With(zap.String("request_id", requestID))
}

// IsDebug reports whether debug entries would be written
func IsDebug(l *zap.Logger) bool {
	return l.Core().Enabled(zapcore.DebugLevel)
}
