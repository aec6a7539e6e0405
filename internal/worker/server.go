package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/ynkmn/reactoruq/internal/config"
)

// Server is the worker server
type Server struct {
	logger *zap.Logger
	config *config.Config
	server *asynq.Server
	mux    *asynq.ServeMux
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

// NewServer creates a new worker server
func NewServer(logger *zap.Logger, cfg *config.Config, svc InferenceService) *Server {
	server := asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues: map[string]int{
				cfg.Worker.QueueCritical: 6,
				cfg.Worker.QueueDefault:  3,
				cfg.Worker.QueueLow:      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("task processing failed",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: &asynqLogger{logger: logger},
		},
	)

	inferenceWorker := NewInferenceWorker(logger, svc)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeInferenceRun, inferenceWorker.ProcessTask)
	mux.HandleFunc(TypeInferenceExport, inferenceWorker.ProcessExportTask)

	return &Server{
		logger: logger,
		config: cfg,
		server: server,
		mux:    mux,
	}
}

// Start runs the worker server until Stop is called
func (s *Server) Start() error {
	s.logger.Info("starting worker server",
		zap.Int("concurrency", s.config.Worker.Concurrency),
	)
	if err := s.server.Run(s.mux); err != nil {
		return fmt.Errorf("worker server stopped: %w", err)
	}
	return nil
}

// Stop stops the worker server
func (s *Server) Stop() {
	s.server.Shutdown()
}

// asynqLogger adapts zap.Logger to asynq.Logger
type asynqLogger struct {
	logger *zap.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}

func (l *asynqLogger) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}

func (l *asynqLogger) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}

func (l *asynqLogger) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
