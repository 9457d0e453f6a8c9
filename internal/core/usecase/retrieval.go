package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// Retriever fetches candidate passages with a depth chosen by complexity and
// by whether a reranker will narrow the list afterwards.
type Retriever struct {
	searcher      ports.VectorSearcher
	rerankEnabled bool
}

func NewRetriever(searcher ports.VectorSearcher, rerankEnabled bool) *Retriever {
	return &Retriever{searcher: searcher, rerankEnabled: rerankEnabled}
}

func retrievalK(complexity domain.Complexity, rerankEnabled bool) int {
	simple := complexity == domain.ComplexitySimple
	switch {
	case rerankEnabled && simple:
		return 10
	case rerankEnabled:
		return 15
	case simple:
		return 3
	default:
		return 7
	}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, complexity domain.Complexity) ([]string, error) {
	k := retrievalK(complexity, r.rerankEnabled)
	passages, err := r.searcher.Search(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}
	if len(passages) > k {
		passages = passages[:k]
	}
	out := make([]string, 0, len(passages))
	for _, p := range passages {
		out = append(out, p.Text)
	}
	return out, nil
}
