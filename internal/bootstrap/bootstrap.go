package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/config"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
	"github.com/kirillkom/adaptive-rag/internal/core/usecase"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/corpus"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/rerank/tei"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/session/memstore"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/session/redisstore"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/adaptive-rag/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Executor     *resilience.Executor
	Query        *usecase.QueryUseCase
	Conversation *usecase.ConversationUseCase
	Reranker     *usecase.Reranker

	closeFns []func()
}

// New wires the serving graph. pipelineMetrics may be nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, pipelineMetrics *metrics.PipelineMetrics) (*App, error) {
	app := &App{Config: cfg, Logger: logger}

	var observer ports.PipelineObserver = usecase.NoopObserver{}
	executorOpts := []resilience.Option{resilience.WithLogger(logger)}
	if pipelineMetrics != nil {
		observer = pipelineMetrics
		executorOpts = append(executorOpts, resilience.WithStateListener(pipelineMetrics.BreakerStateChanged))
	}
	app.Executor = resilience.NewExecutor(ResilienceConfig(cfg), executorOpts...)

	ollamaClient := ollama.New(
		cfg.OllamaURL,
		cfg.OllamaGenModel,
		cfg.OllamaEmbedModel,
		app.Executor,
		ollama.WithTemperature(cfg.OllamaTemperature),
	)
	completer := ollama.NewCompleter(ollamaClient)
	embedder := ollama.NewEmbedder(ollamaClient)

	vectorDB := qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, app.Executor)
	searcher := qdrant.NewSearcher(embedder, vectorDB)

	executor := app.Executor
	reranker := usecase.NewReranker(
		usecase.RerankerConfig{
			Enabled:        cfg.RerankerEnabled,
			TopN:           cfg.RerankerTopN,
			ScoreThreshold: cfg.RerankerScoreThreshold,
		},
		func() (ports.RelevanceScorer, error) {
			logger.Info("reranker_scorer_loaded", slog.String("model", cfg.RerankerModel), slog.String("url", cfg.RerankerURL))
			return tei.NewScorer(cfg.RerankerURL, cfg.RerankerModel, executor), nil
		},
		observer,
		logger,
	)
	app.Reranker = reranker

	deps := usecase.PipelineDeps{
		Completer: completer,
		Retriever: usecase.NewRetriever(searcher, reranker.Enabled()),
		Reranker:  reranker,
		Judge:     usecase.NewJudge(completer),
		Observer:  observer,
		Logger:    logger,
		Timeout:   time.Duration(cfg.InvocationTimeoutSeconds) * time.Second,
	}

	store, err := app.openConversationStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	sessions, err := usecase.NewSessionManager(store, store.NewThreadID, cfg.SessionMaxTurns, cfg.SessionMemoryWindow)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init session manager: %w", err)
	}

	app.Query = usecase.NewQueryUseCase(deps)
	app.Conversation = usecase.NewConversationUseCase(deps, store, sessions)

	logger.Info("app_initialized",
		slog.String("session_store", cfg.SessionStore),
		slog.Bool("reranker_enabled", cfg.RerankerEnabled),
		slog.Int("max_turns", cfg.SessionMaxTurns),
		slog.Int("memory_window", cfg.SessionMemoryWindow),
	)
	return app, nil
}

// conversationStore holds both the thread history and the user-to-thread
// mapping, so sessions live exactly as long as their history.
type conversationStore interface {
	ports.MessageStore
	ports.SessionStore
}

func (a *App) openConversationStore(ctx context.Context) (conversationStore, error) {
	switch a.Config.SessionStore {
	case config.SessionStorePostgres:
		db, err := postgres.OpenDB(a.Config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })

		repo := postgres.NewMessageRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case config.SessionStoreRedis:
		store, err := redisstore.Dial(ctx, a.Config.RedisAddr, a.Config.RedisPassword, a.Config.RedisDB,
			redisstore.WithTTL(time.Duration(a.Config.RedisTTLHours)*time.Hour),
		)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = store.Close() })
		return store, nil
	default:
		return memstore.New(), nil
	}
}

// OpenQueue connects the NATS request/reply transport on the app's
// resilience executor.
func (a *App) OpenQueue() (*nats.Queue, error) {
	queue, err := nats.New(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		RequestTimeout:     time.Duration(a.Config.InvocationTimeoutSeconds+5) * time.Second,
		ResilienceExecutor: a.Executor,
		Logger:             a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}
	a.closeFns = append(a.closeFns, queue.Close)
	return queue, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// NewIndexer wires the offline corpus indexer.
func NewIndexer(cfg config.Config, logger *slog.Logger) (*usecase.IndexCorpusUseCase, error) {
	source, err := corpus.NewSource(cfg.CorpusPath)
	if err != nil {
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	executor := resilience.NewExecutor(ResilienceConfig(cfg), resilience.WithLogger(logger))
	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)

	return usecase.NewIndexCorpusUseCase(
		source,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		ollama.NewEmbedder(ollamaClient),
		qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, executor),
		cfg.IndexBatchSize,
		cfg.IndexConcurrency,
		logger,
	), nil
}

func ResilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.ResilienceRetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.ResilienceRetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.ResilienceRetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.ResilienceBreakerEnabled
	if cfg.ResilienceBreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.ResilienceBreakerMinRequests)
	}
	out.BreakerFailureRatio = cfg.ResilienceBreakerFailureRatio
	out.BreakerOpenTimeout = time.Duration(cfg.ResilienceBreakerOpenTimeoutMS) * time.Millisecond
	return out
}
