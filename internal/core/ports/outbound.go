package ports

import (
	"context"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// VectorSearcher is the nearest-neighbor search over the pre-built corpus.
// Results are ranked by decreasing similarity and never exceed k.
type VectorSearcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.Passage, error)
}

// TextCompleter is the black-box LLM completion service.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// RelevanceScorer scores (query, document) pairs in one batched call; one
// score in [0,1] per document, same order as input.
type RelevanceScorer interface {
	ScorePairs(ctx context.Context, query string, documents []string) ([]float64, error)
}

// MessageStore is the append-only per-thread conversation checkpoint.
type MessageStore interface {
	Append(ctx context.Context, threadID string, message domain.Message) error
	// AppendTurn stores all messages of one turn or none of them.
	AppendTurn(ctx context.Context, threadID string, messages []domain.Message) error
	History(ctx context.Context, threadID string) ([]domain.Message, error)
	NewThreadID() string
}

// SessionStore records the current thread of each user next to the history,
// so restarts and other replicas resume the same conversation.
type SessionStore interface {
	// ClaimThread returns the user's current thread, storing candidate when
	// the user has none yet. Concurrent claims agree on one thread.
	ClaimThread(ctx context.Context, userID, candidate string) (string, error)
	ReplaceThread(ctx context.Context, userID, threadID string) error
}

// Embedder builds vectors for corpus chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits text into semantically usable chunks.
type Chunker interface {
	Split(text string) []string
}

// VectorIndex stores corpus passages; only the offline indexer writes to it.
type VectorIndex interface {
	IndexPassages(ctx context.Context, passages []domain.Passage, vectors [][]float32) error
	SearchVector(ctx context.Context, queryVector []float32, limit int) ([]domain.Passage, error)
}

// CorpusSource lists and reads the source documents of the corpus.
type CorpusSource interface {
	List(ctx context.Context) ([]string, error)
	Load(ctx context.Context, name string) (domain.CorpusDocument, error)
}

// PipelineObserver receives graph telemetry. Implementations must be safe
// for concurrent use.
type PipelineObserver interface {
	ObserveNode(node string, duration time.Duration, err error)
	ObserveRun(mode string, answer *domain.Answer, duration time.Duration, err error)
	ObserveRerank(outcome string, inputDocs, outputDocs int)
}
