package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/app"
	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/handler"
	"github.com/ynkmn/reactoruq/internal/middleware"
	"github.com/ynkmn/reactoruq/internal/service"
	"github.com/ynkmn/reactoruq/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sentryEnabled, err := middleware.InitSentry(cfg.Sentry, "reactoruq@"+app.Version)
	if err != nil {
		logger.Error("failed to initialize Sentry", zap.Error(err))
	}
	if sentryEnabled {
		defer middleware.FlushSentry(5 * time.Second)
	}

	ctx := context.Background()
	rt, err := app.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize dependencies", zap.Error(err))
	}
	defer rt.Close()

	var notifier service.Notifier
	if sentryEnabled {
		notifier = service.NewSentryNotifier()
	}
	svc, err := rt.InferenceService(notifier)
	if err != nil {
		logger.Fatal("failed to create inference service", zap.Error(err))
	}
	queue := worker.NewEnqueuer(cfg)
	defer queue.Close()

	fiberApp := fiber.New(fiber.Config{
		AppName:               "reactoruq API",
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          5 * time.Minute,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: cfg.IsProduction(),
		ErrorHandler:          errorHandler(logger, sentryEnabled),
	})

	fiberApp.Use(middleware.RequestID())
	fiberApp.Use(middleware.Logger(middleware.DefaultLoggerConfig(logger)))
	fiberApp.Use(middleware.Recover(logger, sentryEnabled))
	fiberApp.Use(middleware.Metrics(middleware.HealthSkipper))

	registerRoutes(fiberApp, &routes{
		health: handler.NewHealthHandler(app.Version,
			handler.Check{Name: "postgres", Pinger: rt.Postgres},
			handler.Check{Name: "clickhouse", Pinger: rt.ClickHouse},
			handler.Check{Name: "redis", Pinger: rt.Redis},
		),
		runs: handler.NewRunsHandler(svc, queue, logger),
	})

	go func() {
		addr := cfg.Server.Addr()
		logger.Info("starting server", zap.String("addr", addr))
		if err := fiberApp.Listen(addr); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped")
}

// errorHandler handles errors no handler turned into a response
func errorHandler(logger *zap.Logger, sentryEnabled bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
			message = e.Message
		}

		logger.Error("request error",
			zap.Int("status", code),
			zap.String("error", err.Error()),
			zap.String("path", c.Path()),
			zap.String("method", c.Method()),
			zap.String("request_id", middleware.GetRequestID(c)),
		)

		if sentryEnabled && code >= 500 {
			middleware.CaptureError(c, err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error": fiber.Map{
				"code":    code,
				"message": message,
			},
		})
	}
}
