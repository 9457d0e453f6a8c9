package qdrant

import (
	"context"
	"fmt"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// Searcher answers text queries: it embeds the query and runs a vector
// search against the corpus collection.
type Searcher struct {
	embedder ports.Embedder
	index    ports.VectorIndex
}

func NewSearcher(embedder ports.Embedder, index ports.VectorIndex) *Searcher {
	return &Searcher{embedder: embedder, index: index}
}

func (s *Searcher) Search(ctx context.Context, query string, k int) ([]domain.Passage, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	passages, err := s.index.SearchVector(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("search vector db: %w", err)
	}
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}
