package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestParseQualityScore(t *testing.T) {
	cases := map[string]float64{
		"0.85":       0.85,
		" 0.3\n":     0.3,
		"1":          1,
		"1.7":        1,
		"-0.2":       0,
		"NaN":        defaultQualityScore,
		"Inf":        1,
		"good":       defaultQualityScore,
		"":           defaultQualityScore,
		"score: 0.9": defaultQualityScore,
	}
	for raw, want := range cases {
		if got := parseQualityScore(raw); got != want {
			t.Fatalf("parseQualityScore(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestJudgeSendsOnlyTopThreeDocuments(t *testing.T) {
	completer := newScriptedCompleter(map[string][]string{callJudge: {"0.8"}})
	judge := NewJudge(completer)

	score, err := judge.Score(context.Background(), "q", "answer", []string{"doc-one", "doc-two", "doc-three", "doc-four"})
	if err != nil {
		t.Fatalf("Score() error = %v", err)
	}
	if score != 0.8 {
		t.Fatalf("expected 0.8, got %v", score)
	}
	prompt := completer.lastPrompt(callJudge)
	if !strings.Contains(prompt, "doc-three") || strings.Contains(prompt, "doc-four") {
		t.Fatalf("judge prompt must carry exactly the first three documents:\n%s", prompt)
	}
}

func TestJudgePropagatesCompletionError(t *testing.T) {
	completer := newScriptedCompleter(nil)
	completer.errs[callJudge] = errors.New("llm down")

	if _, err := NewJudge(completer).Score(context.Background(), "q", "a", nil); err == nil {
		t.Fatalf("expected error")
	}
}

func TestQualityScoreAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.OneOf(
			rapid.String(),
			rapid.Map(rapid.Float64(), func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }),
		).Draw(rt, "reply")
		score := parseQualityScore(raw)
		if score < 0 || score > 1 || score != score {
			rt.Fatalf("score %v out of range for %q", score, raw)
		}
	})
}
