package chunking

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewSplitterNormalizesArguments(t *testing.T) {
	s := NewSplitter(0, -1)
	if s.ChunkSize != defaultChunkSize || s.Overlap != 0 {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	s = NewSplitter(100, 100)
	if s.Overlap != 25 {
		t.Fatalf("expected overlap clamp to 25, got %d", s.Overlap)
	}
}

func TestSplitEmptyText(t *testing.T) {
	if chunks := NewSplitter(10, 2).Split(""); chunks != nil {
		t.Fatalf("expected nil, got %v", chunks)
	}
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	chunks := NewSplitter(100, 10).Split("  a perceptron is a linear classifier  ")
	if len(chunks) != 1 || chunks[0] != "a perceptron is a linear classifier" {
		t.Fatalf("unexpected chunks %q", chunks)
	}
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence follows and keeps going on."
	chunks := NewSplitter(25, 0).Split(text)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %q", chunks)
	}
	if chunks[0] != "First sentence here." {
		t.Fatalf("expected cut at sentence end, got %q", chunks[0])
	}
}

func TestSplitCoversTextAndRespectsSize(t *testing.T) {
	words := strings.Repeat("нейрон сеть обучение ", 40)
	s := NewSplitter(50, 10)
	chunks := s.Split(words)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if n := utf8.RuneCountInString(c); n > s.ChunkSize {
			t.Fatalf("chunk exceeds size: %d runes", n)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk not trimmed: %q", c)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(words), chunks[len(chunks)-1]) {
		t.Fatalf("last chunk should end the text, got %q", chunks[len(chunks)-1])
	}
}

func TestSplitWithoutWhitespaceFallsBackToHardCut(t *testing.T) {
	chunks := NewSplitter(4, 1).Split("abcdefghij")
	want := []string{"abcd", "defg", "ghij"}
	if strings.Join(chunks, ",") != strings.Join(want, ",") {
		t.Fatalf("got %q want %q", chunks, want)
	}
}
