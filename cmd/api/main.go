package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/adaptive-rag/internal/adapters/http"
	"github.com/kirillkom/adaptive-rag/internal/bootstrap"
	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/observability/logging"
	"github.com/kirillkom/adaptive-rag/internal/observability/metrics"
)

const serviceName = "rag-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	pipelineMetrics := metrics.NewPipelineMetrics(serviceName, httpMetrics.Registry())

	app, err := bootstrap.New(ctx, cfg, logger, pipelineMetrics)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer app.Close()

	router := httpadapter.NewRouter(cfg, app.Query, app.Conversation, app.Reranker, httpMetrics, logger).Handler()
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      time.Duration(cfg.InvocationTimeoutSeconds+15) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", slog.Any("error", err))
	}
}
