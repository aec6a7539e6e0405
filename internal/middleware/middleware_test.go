package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ynkmn/reactoruq/internal/config"
)

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Logger(DefaultLoggerConfig(zap.New(core))))

	var handlerLogger *zap.Logger
	app.Get("/v1/runs", func(c *fiber.Ctx) error {
		handlerLogger = GetLogger(c, nil)
		return c.SendStatus(fiber.StatusOK)
	})
	app.Get("/fail", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusInternalServerError)
	})
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/v1/runs", nil)
	req.Header.Set("X-Request-ID", "req-1")
	_, err := app.Test(req)
	require.NoError(t, err)
	require.NotNil(t, handlerLogger)

	_, err = app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	_, err = app.Test(httptest.NewRequest("GET", "/healthz", nil))
	require.NoError(t, err)

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "/v1/runs", entries[0].ContextMap()["path"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
}

func TestRecover(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Recover(zap.New(core), false))
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	require.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics(HealthSkipper))
	app.Get("/v1/runs/:id", func(c *fiber.Ctx) error {
		assert.Equal(t, "/v1/runs/:id", routePath(c))
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/runs/123", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestInitSentry_DisabledWithoutDSN(t *testing.T) {
	enabled, err := InitSentry(config.SentryConfig{}, "test")
	require.NoError(t, err)
	assert.False(t, enabled)
}
