package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

func TestRetrievalK(t *testing.T) {
	cases := []struct {
		complexity domain.Complexity
		rerank     bool
		want       int
	}{
		{complexity: domain.ComplexitySimple, rerank: true, want: 10},
		{complexity: domain.ComplexityComplex, rerank: true, want: 15},
		{complexity: domain.ComplexitySimple, rerank: false, want: 3},
		{complexity: domain.ComplexityComplex, rerank: false, want: 7},
	}
	for _, tc := range cases {
		if got := retrievalK(tc.complexity, tc.rerank); got != tc.want {
			t.Fatalf("retrievalK(%s, %v) = %d, want %d", tc.complexity, tc.rerank, got, tc.want)
		}
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	searcher := &searcherFake{passages: passages("a", "b", "c", "d", "e")}
	r := NewRetriever(searcher, false)

	docs, err := r.Retrieve(context.Background(), "q", domain.ComplexitySimple)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if searcher.lastK != 3 {
		t.Fatalf("expected k=3, got %d", searcher.lastK)
	}
	if len(docs) != 3 || docs[0] != "a" || docs[2] != "c" {
		t.Fatalf("unexpected documents %v", docs)
	}
}

func TestRetrievePropagatesSearchError(t *testing.T) {
	r := NewRetriever(&searcherFake{err: errors.New("index offline")}, true)
	if _, err := r.Retrieve(context.Background(), "q", domain.ComplexityComplex); err == nil {
		t.Fatalf("expected error")
	}
}
