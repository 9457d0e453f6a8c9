package domain

import (
	"math"
	"strings"
)

type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// ParseComplexity accepts only the two literals (case, surrounding quotes and
// trailing punctuation ignored). Anything else is complex.
func ParseComplexity(raw string) Complexity {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.Trim(normalized, "\"'`.!:; \t\n")
	switch Complexity(normalized) {
	case ComplexitySimple:
		return ComplexitySimple
	default:
		return ComplexityComplex
	}
}

// Record is the working state threaded through every graph node during one
// invocation.
type Record struct {
	Messages         []Message
	Question         string
	OriginalQuestion string
	IsFollowUp       bool
	Complexity       Complexity
	Documents        []string
	Generation       string
	QualityScore     float64
	Iterations       int

	// NeedsClarification is set when the turn ended with a clarification
	// request instead of an answer.
	NeedsClarification bool
}

// NewRecord builds a fresh record for one invocation. History is carried over
// from the session checkpoint; the counters always start from zero and
// Complexity stays empty until classification runs.
func NewRecord(question string, history []Message) *Record {
	return &Record{
		Messages:         append([]Message(nil), history...),
		Question:         question,
		OriginalQuestion: question,
		Documents:        []string{},
	}
}

// Normalize enforces the record invariants. It runs at node write boundaries,
// not on reads.
func (r *Record) Normalize() {
	r.QualityScore = ClampScore(r.QualityScore)
	if r.Iterations < 0 {
		r.Iterations = 0
	}
	if r.Complexity != "" && r.Complexity != ComplexitySimple && r.Complexity != ComplexityComplex {
		r.Complexity = ComplexityComplex
	}
}

// ClampScore maps any value into [0,1]; NaN becomes 0.
func ClampScore(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
