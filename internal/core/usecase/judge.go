package usecase

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// defaultQualityScore is used when the judge reply is not a number.
const defaultQualityScore = 0.6

type Judge struct {
	completer ports.TextCompleter
}

func NewJudge(completer ports.TextCompleter) *Judge {
	return &Judge{completer: completer}
}

// Score asks the model to rate generation against the question and the top
// documents. The result is always in [0,1].
func (j *Judge) Score(ctx context.Context, question, generation string, documents []string) (float64, error) {
	raw, err := j.completer.Complete(ctx, buildJudgePrompt(question, generation, documents))
	if err != nil {
		return 0, fmt.Errorf("judge answer: %w", err)
	}
	return parseQualityScore(raw), nil
}

func parseQualityScore(raw string) float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) {
		return defaultQualityScore
	}
	return domain.ClampScore(value)
}
