package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

const (
	rerankOutcomeOK                = "ok"
	rerankOutcomeDisabled          = "disabled"
	rerankOutcomeFallbackThreshold = "fallback_threshold"
	rerankOutcomeFallbackError     = "fallback_error"
)

// ScorerFactory builds the relevance scorer on first use.
type ScorerFactory func() (ports.RelevanceScorer, error)

type RerankerConfig struct {
	Enabled        bool
	TopN           int
	ScoreThreshold float64
}

// Reranker reorders retrieved documents by cross-encoder relevance. It never
// returns an error: on any scoring failure it falls back to retrieval order.
type Reranker struct {
	cfg      RerankerConfig
	factory  ScorerFactory
	observer ports.PipelineObserver
	logger   *slog.Logger

	mu     sync.Mutex
	scorer ports.RelevanceScorer
}

func NewReranker(cfg RerankerConfig, factory ScorerFactory, observer ports.PipelineObserver, logger *slog.Logger) *Reranker {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	if observer == nil {
		observer = NoopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reranker{
		cfg:      cfg,
		factory:  factory,
		observer: observer,
		logger:   logger,
	}
}

func (r *Reranker) Enabled() bool {
	return r != nil && r.cfg.Enabled
}

// Reset drops the loaded scorer; the next Rerank call builds a new one.
func (r *Reranker) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scorer != nil {
		r.logger.Info("reranker_reset")
	}
	r.scorer = nil
}

// Rerank returns at most topN documents ordered by relevance to query. A
// non-positive topN uses the configured default.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topN int) []string {
	if !r.Enabled() || len(documents) == 0 {
		r.observer.ObserveRerank(rerankOutcomeDisabled, len(documents), len(documents))
		return documents
	}
	if topN <= 0 {
		topN = r.cfg.TopN
	}

	scores, err := r.score(ctx, query, documents)
	if err != nil {
		out := truncate(documents, topN)
		r.logger.Warn("rerank_failed",
			slog.Any("error", err),
			slog.Int("documents", len(documents)),
			slog.Int("returned", len(out)),
		)
		r.observer.ObserveRerank(rerankOutcomeFallbackError, len(documents), len(out))
		return out
	}

	type scored struct {
		text  string
		score float64
	}
	kept := make([]scored, 0, len(documents))
	for i, doc := range documents {
		if r.cfg.ScoreThreshold > 0 && scores[i] < r.cfg.ScoreThreshold {
			continue
		}
		kept = append(kept, scored{text: doc, score: scores[i]})
	}

	if len(kept) == 0 {
		best := 0
		for i := 1; i < len(scores); i++ {
			if scores[i] > scores[best] {
				best = i
			}
		}
		r.logger.Warn("rerank_all_below_threshold",
			slog.Float64("threshold", r.cfg.ScoreThreshold),
			slog.Float64("best_score", scores[best]),
			slog.Int("documents", len(documents)),
		)
		r.observer.ObserveRerank(rerankOutcomeFallbackThreshold, len(documents), 1)
		return []string{documents[best]}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].score > kept[j].score
	})
	if len(kept) > topN {
		kept = kept[:topN]
	}

	out := make([]string, len(kept))
	for i, item := range kept {
		out[i] = item.text
	}
	r.logger.Debug("rerank_completed",
		slog.Int("documents", len(documents)),
		slog.Int("returned", len(out)),
		slog.Float64("top_score", kept[0].score),
	)
	r.observer.ObserveRerank(rerankOutcomeOK, len(documents), len(out))
	return out
}

func (r *Reranker) score(ctx context.Context, query string, documents []string) ([]float64, error) {
	scorer, err := r.loadScorer()
	if err != nil {
		return nil, err
	}
	scores, err := scorer.ScorePairs(ctx, query, documents)
	if err != nil {
		return nil, fmt.Errorf("score pairs: %w", err)
	}
	if len(scores) != len(documents) {
		return nil, fmt.Errorf("score pairs: got %d scores for %d documents", len(scores), len(documents))
	}
	return scores, nil
}

func (r *Reranker) loadScorer() (ports.RelevanceScorer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scorer != nil {
		return r.scorer, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("load scorer: no scorer factory configured")
	}
	scorer, err := r.factory()
	if err != nil {
		return nil, fmt.Errorf("load scorer: %w", err)
	}
	r.scorer = scorer
	r.logger.Info("reranker_loaded")
	return scorer, nil
}

func truncate(documents []string, n int) []string {
	if n <= 0 || n >= len(documents) {
		return documents
	}
	return documents[:n]
}
