package chunking

import (
	"strings"
	"unicode"
)

const (
	defaultChunkSize = 900
	// A cut may move back by at most ChunkSize/boundaryWindowDivisor runes.
	boundaryWindowDivisor = 5
)

// Splitter cuts text into overlapping rune windows, preferring to end a
// chunk on a sentence or word boundary near the hard limit.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{
		ChunkSize: chunkSize,
		Overlap:   overlap,
	}
}

func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	out := make([]string, 0, len(runes)/s.ChunkSize+1)
	for start := 0; start < len(runes); {
		end := start + s.ChunkSize
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = s.boundary(runes, start, end)
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			break
		}

		next := end - s.Overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// boundary moves a hard cut at end back to the nearest sentence end, or
// failing that whitespace, within the last fifth of the window.
func (s *Splitter) boundary(runes []rune, start, end int) int {
	floor := end - s.ChunkSize/boundaryWindowDivisor
	if floor <= start+s.Overlap {
		floor = start + s.Overlap + 1
	}

	space := -1
	for i := end; i > floor; i-- {
		r := runes[i-1]
		if (r == '.' || r == '!' || r == '?' || r == '\n') && unicode.IsSpace(runes[i]) {
			return i
		}
		if space < 0 && unicode.IsSpace(r) {
			space = i
		}
	}
	if space > 0 {
		return space
	}
	return end
}
