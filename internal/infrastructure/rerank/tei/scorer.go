package tei

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

// Scorer calls a text-embeddings-inference style /rerank endpoint serving a
// cross-encoder and turns raw logits into [0,1] relevance scores.
type Scorer struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func NewScorer(baseURL, model string, executor *resilience.Executor) *Scorer {
	return &Scorer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
	Truncate  bool     `json:"truncate"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// ScorePairs returns one score per document, in input order.
func (s *Scorer) ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	payload := rerankRequest{
		Model:     s.model,
		Query:     query,
		Texts:     documents,
		RawScores: true,
		Truncate:  true,
	}

	results, err := resilience.Do(ctx, s.executor, "tei.rerank", func(callCtx context.Context) ([]rerankResult, error) {
		return s.post(callCtx, payload)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("tei rerank", err)
	}

	scores := make([]float64, len(documents))
	seen := make([]bool, len(documents))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, fmt.Errorf("tei rerank: result index %d out of range", r.Index)
		}
		scores[r.Index] = sigmoid(r.Score)
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("tei rerank: missing score for document %d", i)
		}
	}
	return scores, nil
}

func (s *Scorer) post(ctx context.Context, payload rerankRequest) ([]rerankResult, error) {
	var results []rerankResult
	if err := resilience.DoJSON(ctx, s.httpClient, "tei", "rerank", http.MethodPost, s.baseURL+"/rerank", payload, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
