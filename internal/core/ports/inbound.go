package ports

import (
	"context"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// QueryService answers a single standalone question.
type QueryService interface {
	Ask(ctx context.Context, question string) (*domain.Answer, error)
}

// ConversationService answers questions inside a per-user session.
type ConversationService interface {
	Chat(ctx context.Context, userID, question string) (*domain.Answer, error)
	Reset(ctx context.Context, userID string) (string, error)
}

// RerankerAdmin exposes the reranker reload hook.
type RerankerAdmin interface {
	Reset()
}

// CorpusIndexer builds the fixed corpus index offline.
type CorpusIndexer interface {
	IndexAll(ctx context.Context) (int, error)
}
