package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

const (
	// affirmativeMarker is what follow-up and clarity replies must contain
	// to count as "yes".
	affirmativeMarker   = "yes"
	clarificationPrefix = "Sorry, I need more information. "
	followUpHistorySize = 4
	rerankTopNSimple    = 5
	rerankTopNComplex   = 7
)

// pipeline owns the shared handles every node reads from.
type pipeline struct {
	completer ports.TextCompleter
	retriever *Retriever
	reranker  *Reranker
	judge     *Judge
	observer  ports.PipelineObserver
	logger    *slog.Logger
}

func (p *pipeline) ragGraph() *graph {
	return &graph{
		nodes: map[NodeID]nodeFunc{
			NodeClassify: p.classify,
			NodeRetrieve: p.retrieve,
			NodeRerank:   p.rerank,
			NodeGenerate: p.generate,
			NodeValidate: p.validate,
			NodeRefine:   p.refine,
		},
		edges:    ragEdges(),
		observer: p.observer,
		logger:   p.logger,
	}
}

// conversationGraph binds the session memory window into the nodes that
// read history.
func (p *pipeline) conversationGraph(memoryWindow int) *graph {
	g := p.ragGraph()
	g.edges = conversationEdges()
	g.nodes[NodeAnalyzeContext] = func(ctx context.Context, rec *domain.Record) error {
		return p.analyzeContext(ctx, rec, memoryWindow)
	}
	g.nodes[NodeExpandQuestion] = func(ctx context.Context, rec *domain.Record) error {
		return p.expandQuestion(ctx, rec, memoryWindow)
	}
	g.nodes[NodeCheckClarification] = p.checkClarification
	return g
}

func (p *pipeline) classify(ctx context.Context, rec *domain.Record) error {
	raw, err := p.completer.Complete(ctx, buildClassifyPrompt(rec.Question))
	if err != nil {
		return fmt.Errorf("classify question: %w", err)
	}
	rec.Complexity = domain.ParseComplexity(raw)
	return nil
}

func (p *pipeline) retrieve(ctx context.Context, rec *domain.Record) error {
	docs, err := p.retriever.Retrieve(ctx, rec.Question, rec.Complexity)
	if err != nil {
		return err
	}
	rec.Documents = docs
	return nil
}

func (p *pipeline) rerank(ctx context.Context, rec *domain.Record) error {
	topN := rerankTopNComplex
	if rec.Complexity == domain.ComplexitySimple {
		topN = rerankTopNSimple
	}
	rec.Documents = p.reranker.Rerank(ctx, rec.Question, rec.Documents, topN)
	return nil
}

func (p *pipeline) generate(ctx context.Context, rec *domain.Record) error {
	answer, err := p.completer.Complete(ctx, buildGeneratePrompt(rec.Question, rec.Documents))
	if err != nil {
		return fmt.Errorf("generate answer: %w", err)
	}
	rec.Generation = answer
	return nil
}

func (p *pipeline) validate(ctx context.Context, rec *domain.Record) error {
	score, err := p.judge.Score(ctx, rec.Question, rec.Generation, rec.Documents)
	if err != nil {
		return err
	}
	rec.QualityScore = score
	return nil
}

func (p *pipeline) refine(ctx context.Context, rec *domain.Record) error {
	answer, err := p.completer.Complete(ctx, buildRefinePrompt(rec.Question, rec.Generation, rec.QualityScore, rec.Documents))
	if err != nil {
		return fmt.Errorf("refine answer: %w", err)
	}
	rec.Generation = answer
	rec.Iterations++
	return nil
}

func (p *pipeline) analyzeContext(ctx context.Context, rec *domain.Record, memoryWindow int) error {
	rec.OriginalQuestion = rec.Question
	if len(rec.Messages) == 0 {
		rec.IsFollowUp = false
		return nil
	}

	recent := domain.RecentMessages(rec.Messages, min(followUpHistorySize, memoryWindow))
	raw, err := p.completer.Complete(ctx, buildFollowUpPrompt(recent, rec.Question))
	if err != nil {
		return fmt.Errorf("detect follow-up: %w", err)
	}
	rec.IsFollowUp = isAffirmative(raw)
	return nil
}

func (p *pipeline) expandQuestion(ctx context.Context, rec *domain.Record, memoryWindow int) error {
	if !rec.IsFollowUp {
		return nil
	}
	recent := domain.RecentMessages(rec.Messages, memoryWindow)
	raw, err := p.completer.Complete(ctx, buildExpandPrompt(recent, rec.OriginalQuestion))
	if err != nil {
		return fmt.Errorf("expand question: %w", err)
	}
	if expanded := strings.TrimSpace(raw); expanded != "" {
		rec.Question = expanded
	}
	p.logger.Debug("question_expanded",
		slog.String("original", rec.OriginalQuestion),
		slog.String("expanded", rec.Question),
	)
	return nil
}

// checkClarification runs before retrieval, so on a fresh record documents
// are always empty and the clarity check always happens.
func (p *pipeline) checkClarification(ctx context.Context, rec *domain.Record) error {
	if len(rec.Documents) > 0 {
		return nil
	}
	raw, err := p.completer.Complete(ctx, buildClarityPrompt(rec.Question))
	if err != nil {
		return fmt.Errorf("check clarity: %w", err)
	}
	if !isAffirmative(raw) {
		return nil
	}

	clarification, err := p.completer.Complete(ctx, buildClarificationPrompt(rec.Question))
	if err != nil {
		return fmt.Errorf("ask clarification: %w", err)
	}
	rec.Generation = clarificationPrefix + strings.TrimSpace(clarification)
	rec.QualityScore = clarificationScore
	rec.NeedsClarification = true
	p.logger.Info("clarification_requested", slog.String("question", rec.Question))
	return nil
}

func isAffirmative(reply string) bool {
	return strings.Contains(strings.ToLower(reply), affirmativeMarker)
}
