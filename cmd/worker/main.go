package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/app"
	"github.com/ynkmn/reactoruq/internal/config"
	"github.com/ynkmn/reactoruq/internal/middleware"
	"github.com/ynkmn/reactoruq/internal/service"
	"github.com/ynkmn/reactoruq/internal/worker"
)

func main() {
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

	logger.Info("starting worker service")

	sentryEnabled, err := middleware.InitSentry(cfg.Sentry, "reactoruq-worker@"+app.Version)
	if err != nil {
		logger.Error("failed to initialize Sentry", zap.Error(err))
	}
	if sentryEnabled {
		defer middleware.FlushSentry(5 * time.Second)
	}

	rt, err := app.Connect(context.Background(), cfg, logger)
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

	workerServer := worker.NewServer(logger, cfg, svc)

	errCh := make(chan error, 1)
	go func() {
		errCh <- workerServer.Start()
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutting down worker...")
		workerServer.Stop()
	case err := <-errCh:
		if err != nil {
			logger.Error("worker server error", zap.Error(err))
		}
	}

	logger.Info("worker stopped")
}
