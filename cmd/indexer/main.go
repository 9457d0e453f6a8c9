package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/adaptive-rag/internal/bootstrap"
	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.New("rag-indexer", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	indexer, err := bootstrap.NewIndexer(cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", slog.Any("error", err))
		os.Exit(1)
	}

	passages, err := indexer.IndexAll(ctx)
	if err != nil {
		logger.Error("indexing_failed", slog.Any("error", err), slog.Int("passages", passages))
		os.Exit(1)
	}
	logger.Info("indexing_finished", slog.String("corpus", cfg.CorpusPath), slog.Int("passages", passages))
}
