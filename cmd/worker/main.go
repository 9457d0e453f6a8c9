package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/bootstrap"
	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/adaptive-rag/internal/observability/logging"
	"github.com/kirillkom/adaptive-rag/internal/observability/metrics"
)

const serviceName = "rag-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, workerMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, pipelineMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	queue, err := app.OpenQueue()
	if err != nil {
		logger.Error("queue_connect_failed", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", slog.String("subject", cfg.NATSSubject))
	err = queue.Serve(ctx, func(handlerCtx context.Context, req nats.QueryRequest) (*domain.Answer, error) {
		mode := "single"
		if strings.TrimSpace(req.UserID) != "" {
			mode = "conversation"
		}

		started := time.Now()
		workerMetrics.StartRequest()
		var (
			answer *domain.Answer
			err    error
		)
		if mode == "conversation" {
			answer, err = app.Conversation.Chat(handlerCtx, req.UserID, req.Question)
		} else {
			answer, err = app.Query.Ask(handlerCtx, req.Question)
		}
		workerMetrics.FinishRequest(serviceName, mode, time.Since(started), err)
		return answer, err
	})
	if err != nil {
		logger.Error("worker_serve_failed", slog.Any("error", err))
	}
}
