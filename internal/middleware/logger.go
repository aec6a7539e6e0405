package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/pkg/logger"
)

const loggerKey = "logger"

// LoggerConfig configures the logger middleware
type LoggerConfig struct {
	Logger *zap.Logger
	// Skip function
	Skip func(*fiber.Ctx) bool
}

// DefaultLoggerConfig returns default logger config
func DefaultLoggerConfig(l *zap.Logger) LoggerConfig {
	return LoggerConfig{
		Logger: l,
		Skip:   HealthSkipper,
	}
}

// Logger creates a request logging middleware. It stores a logger carrying
// the request ID in locals for handlers to use.
func Logger(config LoggerConfig) fiber.Handler {
	base := logger.OrNop(config.Logger)
	return func(c *fiber.Ctx) error {
		reqLog := logger.WithRequestID(base, GetRequestID(c))
		c.Locals(loggerKey, reqLog)

		if config.Skip != nil && config.Skip(c) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.IP()),
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}

		status := c.Response().StatusCode()
		switch {
		case status >= 500:
			reqLog.Error("request completed", fields...)
		case status >= 400:
			reqLog.Warn("request completed", fields...)
		default:
			reqLog.Debug("request completed", fields...)
		}
		return err
	}
}

// GetLogger returns the request logger, or fallback when none is set
func GetLogger(c *fiber.Ctx, fallback *zap.Logger) *zap.Logger {
	if l, ok := c.Locals(loggerKey).(*zap.Logger); ok {
		return l
	}
	return logger.OrNop(fallback)
}

// HealthSkipper skips logging for probe and scrape endpoints
func HealthSkipper(c *fiber.Ctx) bool {
	switch c.Path() {
	case "/health", "/healthz", "/ready", "/readyz", "/live", "/livez", "/metrics":
		return true
	}
	return false
}
