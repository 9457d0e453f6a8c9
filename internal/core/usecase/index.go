package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// IndexCorpusUseCase builds the fixed corpus index offline. Serving code
// never calls it.
type IndexCorpusUseCase struct {
	source      ports.CorpusSource
	chunker     ports.Chunker
	embedder    ports.Embedder
	index       ports.VectorIndex
	batchSize   int
	concurrency int
	logger      *slog.Logger
}

func NewIndexCorpusUseCase(
	source ports.CorpusSource,
	chunker ports.Chunker,
	embedder ports.Embedder,
	index ports.VectorIndex,
	batchSize int,
	concurrency int,
	logger *slog.Logger,
) *IndexCorpusUseCase {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexCorpusUseCase{
		source:      source,
		chunker:     chunker,
		embedder:    embedder,
		index:       index,
		batchSize:   batchSize,
		concurrency: concurrency,
		logger:      logger,
	}
}

// IndexAll indexes every corpus document and returns the number of passages
// written. The first failure cancels the remaining work.
func (uc *IndexCorpusUseCase) IndexAll(ctx context.Context) (int, error) {
	names, err := uc.source.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list corpus: %w", err)
	}

	var indexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.concurrency)
	for _, name := range names {
		g.Go(func() error {
			n, err := uc.indexDocument(gctx, name)
			if err != nil {
				return fmt.Errorf("index %s: %w", name, err)
			}
			indexed.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(indexed.Load()), err
	}

	uc.logger.Info("corpus_indexed",
		slog.Int("documents", len(names)),
		slog.Int64("passages", indexed.Load()),
	)
	return int(indexed.Load()), nil
}

func (uc *IndexCorpusUseCase) indexDocument(ctx context.Context, name string) (int, error) {
	doc, err := uc.source.Load(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("load document: %w", err)
	}
	chunks := uc.chunker.Split(doc.Text)
	if len(chunks) == 0 {
		uc.logger.Warn("corpus_document_empty", slog.String("source", doc.Source))
		return 0, nil
	}

	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		batch := chunks[start:end]

		vectors, err := uc.embedder.Embed(ctx, batch)
		if err != nil {
			return start, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return start, domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(batch)),
			)
		}

		passages := make([]domain.Passage, len(batch))
		for i, text := range batch {
			passages[i] = domain.Passage{
				DocumentID: doc.ID,
				Source:     doc.Source,
				ChunkIndex: start + i,
				Text:       text,
			}
		}
		if err := uc.index.IndexPassages(ctx, passages, vectors); err != nil {
			return start, fmt.Errorf("index passages: %w", err)
		}
	}
	return len(chunks), nil
}
