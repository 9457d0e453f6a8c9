package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

const (
	runModeSingle       = "single"
	runModeConversation = "conversation"

	defaultInvocationTimeout = 90 * time.Second
)

// PipelineDeps are the process-wide handles shared by both invocation modes.
type PipelineDeps struct {
	Completer ports.TextCompleter
	Retriever *Retriever
	Reranker  *Reranker
	Judge     *Judge
	Observer  ports.PipelineObserver
	Logger    *slog.Logger
	Timeout   time.Duration
}

func newPipeline(deps PipelineDeps) (*pipeline, time.Duration) {
	observer := deps.Observer
	if observer == nil {
		observer = NoopObserver{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	judge := deps.Judge
	if judge == nil {
		judge = NewJudge(deps.Completer)
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultInvocationTimeout
	}
	return &pipeline{
		completer: deps.Completer,
		retriever: deps.Retriever,
		reranker:  deps.Reranker,
		judge:     judge,
		observer:  observer,
		logger:    logger,
	}, timeout
}

// QueryUseCase answers standalone questions with the adaptive RAG graph.
type QueryUseCase struct {
	pipeline *pipeline
	timeout  time.Duration
}

func NewQueryUseCase(deps PipelineDeps) *QueryUseCase {
	p, timeout := newPipeline(deps)
	return &QueryUseCase{pipeline: p, timeout: timeout}
}

func (uc *QueryUseCase) Ask(ctx context.Context, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ask", fmt.Errorf("question is required"))
	}

	runCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	started := time.Now()
	rec := domain.NewRecord(question, nil)
	err := uc.pipeline.ragGraph().run(runCtx, NodeClassify, rec)
	if err != nil {
		uc.pipeline.observer.ObserveRun(runModeSingle, nil, time.Since(started), err)
		return nil, wrapRunError("ask", err)
	}

	answer := answerFromRecord("", rec)
	uc.pipeline.observer.ObserveRun(runModeSingle, answer, time.Since(started), nil)
	uc.pipeline.logger.Info("query_answered",
		slog.String("complexity", string(answer.Complexity)),
		slog.Float64("quality_score", answer.QualityScore),
		slog.Int("iterations", answer.Iterations),
		slog.Int("documents", len(answer.Documents)),
		slog.Duration("duration", time.Since(started)),
	)
	return answer, nil
}

func answerFromRecord(threadID string, rec *domain.Record) *domain.Answer {
	return &domain.Answer{
		ThreadID:           threadID,
		Text:               rec.Generation,
		Question:           rec.Question,
		OriginalQuestion:   rec.OriginalQuestion,
		IsFollowUp:         rec.IsFollowUp,
		NeedsClarification: rec.NeedsClarification,
		Complexity:         rec.Complexity,
		QualityScore:       rec.QualityScore,
		Iterations:         rec.Iterations,
		Documents:          append([]string{}, rec.Documents...),
	}
}

func wrapRunError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
