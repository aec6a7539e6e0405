package middleware

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/config"
)

const sentryHubKey = "sentry_hub"

// InitSentry initializes the Sentry SDK. It returns false when no DSN is set.
func InitSentry(cfg config.SentryConfig, release string) (bool, error) {
	if cfg.DSN == "" {
		return false, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		Release:          release,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return false, fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	return true, nil
}

// FlushSentry flushes any buffered events to Sentry
func FlushSentry(timeout time.Duration) {
	sentry.Flush(timeout)
}

// Recover turns panics into 500 responses and reports them to Sentry when
// enabled. Each request gets its own hub so scope data does not leak
// between requests.
func Recover(logger *zap.Logger, sentryEnabled bool) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		var hub *sentry.Hub
		if sentryEnabled {
			hub = sentry.CurrentHub().Clone()
			hub.Scope().SetTag("request_id", GetRequestID(c))
			hub.Scope().SetContext("Request", map[string]interface{}{
				"url":    c.OriginalURL(),
				"method": c.Method(),
			})
			c.Locals(sentryHubKey, hub)
		}

		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := debug.Stack()
			panicErr, ok := r.(error)
			if !ok {
				panicErr = fmt.Errorf("%v", r)
			}

			logger.Error("panic recovered",
				zap.Error(panicErr),
				zap.String("path", c.Path()),
				zap.String("method", c.Method()),
				zap.String("stack", string(stack)),
				zap.String("request_id", GetRequestID(c)),
			)

			if hub != nil {
				hub.Scope().SetExtra("stack_trace", string(stack))
				hub.Scope().SetLevel(sentry.LevelFatal)
				hub.RecoverWithContext(c.Context(), r)
				hub.Flush(2 * time.Second)
			}

			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":      "Internal Server Error",
				"message":    "An unexpected error occurred",
				"request_id": GetRequestID(c),
			})
		}()

		return c.Next()
	}
}

// CaptureError reports an error to Sentry from a Fiber context
func CaptureError(c *fiber.Ctx, err error) {
	hub, ok := c.Locals(sentryHubKey).(*sentry.Hub)
	if !ok || hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("path", c.Path())
		scope.SetExtra("method", c.Method())
		scope.SetTag("request_id", GetRequestID(c))
		hub.CaptureException(err)
	})
}
