package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

const (
	callClassify      = "classify"
	callGenerate      = "generate"
	callJudge         = "judge"
	callRefine        = "refine"
	callFollowUp      = "follow_up"
	callExpand        = "expand"
	callClarity       = "clarity"
	callClarification = "clarification"
)

var promptKinds = []struct {
	prefix string
	kind   string
}{
	{prefix: "Classify the following question", kind: callClassify},
	{prefix: "You answer questions using only", kind: callGenerate},
	{prefix: "Rate the quality", kind: callJudge},
	{prefix: "You need to IMPROVE", kind: callRefine},
	{prefix: "Decide whether the current question is a follow-up", kind: callFollowUp},
	{prefix: "Rewrite the follow-up question", kind: callExpand},
	{prefix: "Decide whether the following question is clear", kind: callClarity},
	{prefix: "Write one polite", kind: callClarification},
}

// scriptedCompleter answers each prompt kind from a queue; the last reply of
// a queue repeats once the queue is drained.
type scriptedCompleter struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	block   bool
	calls   []string
	prompts map[string][]string
}

func newScriptedCompleter(replies map[string][]string) *scriptedCompleter {
	return &scriptedCompleter{
		replies: replies,
		errs:    map[string]error{},
		prompts: map[string][]string{},
	}
}

func (c *scriptedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	kind := "unknown"
	for _, pk := range promptKinds {
		if strings.HasPrefix(prompt, pk.prefix) {
			kind = pk.kind
			break
		}
	}

	c.mu.Lock()
	c.calls = append(c.calls, kind)
	c.prompts[kind] = append(c.prompts[kind], prompt)
	block := c.block
	err := c.errs[kind]
	queue := c.replies[kind]
	reply := ""
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			c.replies[kind] = queue[1:]
		}
	}
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *scriptedCompleter) count(kind string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, call := range c.calls {
		if call == kind {
			n++
		}
	}
	return n
}

func (c *scriptedCompleter) lastPrompt(kind string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	prompts := c.prompts[kind]
	if len(prompts) == 0 {
		return ""
	}
	return prompts[len(prompts)-1]
}

type searcherFake struct {
	passages []domain.Passage
	err      error
	lastK    int
	lastQ    string
}

func (f *searcherFake) Search(_ context.Context, query string, k int) ([]domain.Passage, error) {
	f.lastK = k
	f.lastQ = query
	if f.err != nil {
		return nil, f.err
	}
	return f.passages, nil
}

func passages(texts ...string) []domain.Passage {
	out := make([]domain.Passage, len(texts))
	for i, text := range texts {
		out[i] = domain.Passage{DocumentID: fmt.Sprintf("doc-%d", i), Text: text, Score: 1 - float64(i)/100}
	}
	return out
}

type scorerFake struct {
	scores []float64
	err    error
	calls  int
}

func (f *scorerFake) ScorePairs(context.Context, string, []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

// scoreByText scores documents by a lookup table.
type scoreByText map[string]float64

func (s scoreByText) ScorePairs(_ context.Context, _ string, documents []string) ([]float64, error) {
	out := make([]float64, len(documents))
	for i, doc := range documents {
		out[i] = s[doc]
	}
	return out, nil
}

func staticFactory(scorer ports.RelevanceScorer) ScorerFactory {
	return func() (ports.RelevanceScorer, error) { return scorer, nil }
}

type messageStoreFake struct {
	mu       sync.Mutex
	threads  map[string][]domain.Message
	current  map[string]string
	appends  int
	appendFn func(domain.Message) error
	claimErr error
	nextID   int
}

func newMessageStoreFake() *messageStoreFake {
	return &messageStoreFake{threads: map[string][]domain.Message{}, current: map[string]string{}}
}

func (f *messageStoreFake) Append(ctx context.Context, threadID string, message domain.Message) error {
	return f.AppendTurn(ctx, threadID, []domain.Message{message})
}

// AppendTurn checks every message against appendFn before storing any.
func (f *messageStoreFake) AppendTurn(_ context.Context, threadID string, messages []domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendFn != nil {
		for _, message := range messages {
			if err := f.appendFn(message); err != nil {
				return err
			}
		}
	}
	f.appends += len(messages)
	f.threads[threadID] = append(f.threads[threadID], messages...)
	return nil
}

func (f *messageStoreFake) History(_ context.Context, threadID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.threads[threadID]...), nil
}

func (f *messageStoreFake) NewThreadID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return fmt.Sprintf("00000000-0000-4000-8000-%012d", f.nextID)
}

func (f *messageStoreFake) ClaimThread(_ context.Context, userID, candidate string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		return "", f.claimErr
	}
	if threadID, ok := f.current[userID]; ok {
		return threadID, nil
	}
	f.current[userID] = candidate
	return candidate, nil
}

func (f *messageStoreFake) ReplaceThread(_ context.Context, userID, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current[userID] = threadID
	return nil
}

type observerFake struct {
	mu      sync.Mutex
	nodes   []string
	runs    []string
	runErrs int
	reranks []string
}

func (o *observerFake) ObserveNode(node string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nodes = append(o.nodes, node)
}

func (o *observerFake) ObserveRun(mode string, _ *domain.Answer, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, mode)
	if err != nil {
		o.runErrs++
	}
}

func (o *observerFake) ObserveRerank(outcome string, _, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reranks = append(o.reranks, outcome)
}
