package domain

// Passage is one corpus chunk returned by nearest-neighbor search.
type Passage struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// CorpusDocument is a source file of the fixed corpus before chunking.
type CorpusDocument struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Answer is what callers get back from one invocation, with diagnostics.
type Answer struct {
	ThreadID           string     `json:"thread_id,omitempty"`
	Text               string     `json:"text"`
	Question           string     `json:"question"`
	OriginalQuestion   string     `json:"original_question"`
	IsFollowUp         bool       `json:"is_followup"`
	NeedsClarification bool       `json:"needs_clarification"`
	Complexity         Complexity `json:"complexity,omitempty"`
	QualityScore       float64    `json:"quality_score"`
	Iterations         int        `json:"iterations"`
	Documents          []string   `json:"documents"`
}
