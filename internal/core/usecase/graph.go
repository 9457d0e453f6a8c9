package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

type NodeID string

const (
	NodeAnalyzeContext     NodeID = "analyze_context"
	NodeExpandQuestion     NodeID = "expand_question"
	NodeCheckClarification NodeID = "check_clarification"
	NodeClassify           NodeID = "classify"
	NodeRetrieve           NodeID = "retrieve"
	NodeRerank             NodeID = "rerank"
	NodeGenerate           NodeID = "generate"
	NodeValidate           NodeID = "validate"
	NodeRefine             NodeID = "refine"
	NodeEnd                NodeID = "end"
)

const (
	qualityThreshold   = 0.7
	maxRefinements     = 2
	clarificationScore = 0.5
	clarificationDelta = 0.01

	// maxGraphSteps bounds a walk; the longest legal path is far below it.
	maxGraphSteps = 32
)

type nodeFunc func(ctx context.Context, rec *domain.Record) error

// transition picks the next node once the current one has written its output.
type transition func(rec *domain.Record) NodeID

func always(next NodeID) transition {
	return func(*domain.Record) NodeID { return next }
}

// shouldRefine ends the loop once the answer is good enough or the refinement
// budget is spent.
func shouldRefine(rec *domain.Record) NodeID {
	if rec.QualityScore >= qualityThreshold || rec.Iterations >= maxRefinements {
		return NodeEnd
	}
	return NodeRefine
}

// shouldProceedOrClarify ends the turn when check_clarification produced a
// clarification request.
func shouldProceedOrClarify(rec *domain.Record) NodeID {
	if rec.Generation != "" && math.Abs(rec.QualityScore-clarificationScore) < clarificationDelta {
		return NodeEnd
	}
	return NodeClassify
}

type graph struct {
	nodes    map[NodeID]nodeFunc
	edges    map[NodeID]transition
	observer ports.PipelineObserver
	logger   *slog.Logger
}

func ragEdges() map[NodeID]transition {
	return map[NodeID]transition{
		NodeClassify: always(NodeRetrieve),
		NodeRetrieve: always(NodeRerank),
		NodeRerank:   always(NodeGenerate),
		NodeGenerate: always(NodeValidate),
		NodeValidate: shouldRefine,
		NodeRefine:   always(NodeValidate),
	}
}

func conversationEdges() map[NodeID]transition {
	edges := ragEdges()
	edges[NodeAnalyzeContext] = always(NodeExpandQuestion)
	edges[NodeExpandQuestion] = always(NodeCheckClarification)
	edges[NodeCheckClarification] = shouldProceedOrClarify
	return edges
}

// run walks the graph from start until NodeEnd. Node errors abort the walk;
// the record is normalized after every node.
func (g *graph) run(ctx context.Context, start NodeID, rec *domain.Record) error {
	current := start
	for step := 0; current != NodeEnd; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("graph aborted before %s: %w", current, err)
		}
		if step >= maxGraphSteps {
			return fmt.Errorf("graph exceeded %d steps at %s", maxGraphSteps, current)
		}

		node, ok := g.nodes[current]
		if !ok {
			return fmt.Errorf("graph has no node %q", current)
		}
		next, ok := g.edges[current]
		if !ok {
			return fmt.Errorf("graph has no transition from %q", current)
		}

		started := time.Now()
		err := node(ctx, rec)
		elapsed := time.Since(started)
		g.observer.ObserveNode(string(current), elapsed, err)
		if err != nil {
			g.logger.Error("graph_node_failed",
				slog.String("node", string(current)),
				slog.Duration("duration", elapsed),
				slog.Any("error", err),
			)
			return fmt.Errorf("%s: %w", current, err)
		}
		rec.Normalize()

		g.logger.Debug("graph_node_completed",
			slog.String("node", string(current)),
			slog.Duration("duration", elapsed),
			slog.String("complexity", string(rec.Complexity)),
			slog.Int("documents", len(rec.Documents)),
			slog.Float64("quality_score", rec.QualityScore),
			slog.Int("iterations", rec.Iterations),
		)
		current = next(rec)
	}
	return nil
}
