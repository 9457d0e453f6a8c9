package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

type chatFixture struct {
	completer *scriptedCompleter
	store     *messageStoreFake
	sessions  *SessionManager
	uc        *ConversationUseCase
}

func newChatFixture(t *testing.T, replies map[string][]string, maxTurns, window int) *chatFixture {
	t.Helper()
	f := &chatFixture{
		completer: newScriptedCompleter(replies),
		store:     newMessageStoreFake(),
	}
	sessions, err := NewSessionManager(f.store, f.store.NewThreadID, maxTurns, window)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	f.sessions = sessions
	f.uc = NewConversationUseCase(PipelineDeps{
		Completer: f.completer,
		Retriever: NewRetriever(&searcherFake{passages: passages("p1", "p2", "p3")}, false),
		Reranker:  NewReranker(RerankerConfig{}, nil, nil, nil),
		Timeout:   time.Second,
	}, f.store, sessions)
	return f
}

func baseReplies() map[string][]string {
	return map[string][]string{
		callFollowUp: {"no"},
		callClarity:  {"no"},
		callClassify: {"simple"},
		callGenerate: {"answer"},
		callJudge:    {"0.9"},
	}
}

func TestChatFirstTurnSkipsFollowUpAndCommits(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)

	answer, err := f.uc.Chat(context.Background(), "user-1", "What is a perceptron?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer.IsFollowUp || answer.Text != "answer" {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if f.completer.count(callFollowUp) != 0 {
		t.Fatalf("follow-up detection must not run on an empty history")
	}

	history, _ := f.store.History(context.Background(), answer.ThreadID)
	if len(history) != 2 || history[0].Role != domain.RoleUser || history[1].Role != domain.RoleAssistant {
		t.Fatalf("expected user+assistant committed, got %+v", history)
	}
	if history[0].Content != "What is a perceptron?" || history[1].Content != "answer" {
		t.Fatalf("unexpected committed contents %+v", history)
	}
}

func TestChatExpandsFollowUpQuestion(t *testing.T) {
	replies := baseReplies()
	replies[callFollowUp] = []string{"Yes, it refers to the previous topic."}
	replies[callExpand] = []string{"  What are the limitations of the perceptron?  "}
	f := newChatFixture(t, replies, domain.DefaultMaxTurns, domain.DefaultMemoryWindow)

	session, _ := f.sessions.Get(context.Background(), "user-1")
	for _, content := range []string{"m1", "m2", "m3", "m4", "m5", "m6", "m7", "m8"} {
		role := domain.RoleUser
		if strings.HasSuffix(content, "2") || strings.HasSuffix(content, "4") || strings.HasSuffix(content, "6") || strings.HasSuffix(content, "8") {
			role = domain.RoleAssistant
		}
		_ = f.store.Append(context.Background(), session.ThreadID(), domain.Message{Role: role, Content: content})
	}

	answer, err := f.uc.Chat(context.Background(), "user-1", "And its limitations?")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if !answer.IsFollowUp {
		t.Fatalf("expected follow-up")
	}
	if answer.Question != "What are the limitations of the perceptron?" || answer.OriginalQuestion != "And its limitations?" {
		t.Fatalf("unexpected questions %q / %q", answer.Question, answer.OriginalQuestion)
	}

	followUpPrompt := f.completer.lastPrompt(callFollowUp)
	if strings.Contains(followUpPrompt, "m4") || !strings.Contains(followUpPrompt, "m5") {
		t.Fatalf("follow-up prompt must carry only the last 4 messages:\n%s", followUpPrompt)
	}
	expandPrompt := f.completer.lastPrompt(callExpand)
	if strings.Contains(expandPrompt, "m2") || !strings.Contains(expandPrompt, "m3") {
		t.Fatalf("expand prompt must carry the last 6 messages:\n%s", expandPrompt)
	}
	if !strings.Contains(f.completer.lastPrompt(callGenerate), "What are the limitations of the perceptron?") {
		t.Fatalf("generation must use the expanded question")
	}

	history, _ := f.store.History(context.Background(), session.ThreadID())
	if history[len(history)-2].Content != "And its limitations?" {
		t.Fatalf("the original question must be stored, got %q", history[len(history)-2].Content)
	}
}

func TestChatFollowUpWindowFollowsSession(t *testing.T) {
	replies := baseReplies()
	replies[callFollowUp] = []string{"yes"}
	replies[callExpand] = []string{"expanded"}
	f := newChatFixture(t, replies, 5, 2)

	session, _ := f.sessions.Get(context.Background(), "user-1")
	for _, content := range []string{"u1", "a1", "u2", "a2"} {
		role := domain.RoleUser
		if strings.HasPrefix(content, "a") {
			role = domain.RoleAssistant
		}
		_ = f.store.Append(context.Background(), session.ThreadID(), domain.Message{Role: role, Content: content})
	}

	if _, err := f.uc.Chat(context.Background(), "user-1", "and then?"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	for _, kind := range []string{callFollowUp, callExpand} {
		prompt := f.completer.lastPrompt(kind)
		if strings.Contains(prompt, "a1") || !strings.Contains(prompt, "u2") {
			t.Fatalf("%s prompt must carry memory_window=2 messages:\n%s", kind, prompt)
		}
	}
}

func TestChatVagueQuestionAsksForClarification(t *testing.T) {
	replies := baseReplies()
	replies[callClarity] = []string{"Yes"}
	replies[callClarification] = []string{"Which topic do you mean?"}
	f := newChatFixture(t, replies, domain.DefaultMaxTurns, domain.DefaultMemoryWindow)

	answer, err := f.uc.Chat(context.Background(), "user-1", "Tell me about it")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if answer.Text != "Sorry, I need more information. Which topic do you mean?" {
		t.Fatalf("unexpected clarification %q", answer.Text)
	}
	if !answer.NeedsClarification || answer.QualityScore != 0.5 || len(answer.Documents) != 0 {
		t.Fatalf("unexpected answer %+v", answer)
	}
	if answer.Complexity != "" {
		t.Fatalf("complexity must stay unset when classification never ran, got %q", answer.Complexity)
	}
	if f.completer.count(callClassify) != 0 || f.completer.count(callGenerate) != 0 {
		t.Fatalf("the RAG graph must not run after a clarification")
	}
	if f.store.appends != 2 {
		t.Fatalf("clarification turn must still be committed, appends=%d", f.store.appends)
	}
}

func TestChatFailureDoesNotCommit(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	f.completer.errs[callGenerate] = errors.New("llm unavailable")

	if _, err := f.uc.Chat(context.Background(), "user-1", "q"); err == nil {
		t.Fatalf("expected error")
	}
	if f.store.appends != 0 {
		t.Fatalf("failed turn must not touch history, appends=%d", f.store.appends)
	}
}

func TestChatTimeoutDoesNotCommit(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	f.completer.block = true
	f.uc.timeout = 20 * time.Millisecond

	_, err := f.uc.Chat(context.Background(), "user-1", "q")
	if !domain.IsKind(err, domain.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if f.store.appends != 0 {
		t.Fatalf("timed-out turn must not be committed")
	}
}

func TestChatStoreFailureLeavesNoPartialTurn(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	f.store.appendFn = func(msg domain.Message) error {
		if msg.Role == domain.RoleAssistant {
			return errors.New("store hiccup")
		}
		return nil
	}

	if _, err := f.uc.Chat(context.Background(), "user-1", "q1"); err == nil {
		t.Fatalf("expected commit error")
	}
	session, _ := f.sessions.Get(context.Background(), "user-1")
	history, _ := f.store.History(context.Background(), session.ThreadID())
	if len(history) != 0 {
		t.Fatalf("failed commit must leave history untouched, got %+v", history)
	}

	f.store.appendFn = nil
	if _, err := f.uc.Chat(context.Background(), "user-1", "q2"); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	history, _ = f.store.History(context.Background(), session.ThreadID())
	if len(history) != 2 || domain.UserTurns(history) != 1 {
		t.Fatalf("expected exactly one committed turn, got %+v", history)
	}
}

func TestChatResumesThreadAcrossUseCaseInstances(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	first, err := f.uc.Chat(context.Background(), "user-1", "q1")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}

	sessions, err := NewSessionManager(f.store, f.store.NewThreadID, domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	restarted := NewConversationUseCase(PipelineDeps{
		Completer: f.completer,
		Retriever: NewRetriever(&searcherFake{passages: passages("p1")}, false),
		Reranker:  NewReranker(RerankerConfig{}, nil, nil, nil),
		Timeout:   time.Second,
	}, f.store, sessions)

	second, err := restarted.Chat(context.Background(), "user-1", "q2")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if second.ThreadID != first.ThreadID {
		t.Fatalf("expected thread %q to be resumed, got %q", first.ThreadID, second.ThreadID)
	}
	if f.completer.count(callFollowUp) != 1 {
		t.Fatalf("resumed turn must see the stored history")
	}
}

func TestChatEnforcesTurnLimit(t *testing.T) {
	f := newChatFixture(t, baseReplies(), 2, 1)

	for i := 0; i < 2; i++ {
		if _, err := f.uc.Chat(context.Background(), "user-1", "q"); err != nil {
			t.Fatalf("turn %d: Chat() error = %v", i+1, err)
		}
	}
	if _, err := f.uc.Chat(context.Background(), "user-1", "q"); !domain.IsKind(err, domain.ErrTurnLimitReached) {
		t.Fatalf("expected ErrTurnLimitReached, got %v", err)
	}

	if _, err := f.uc.Reset(context.Background(), "user-1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if _, err := f.uc.Chat(context.Background(), "user-1", "q"); err != nil {
		t.Fatalf("expected a fresh session after reset, got %v", err)
	}
}

func TestChatResetStartsEmptyThread(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)

	first, err := f.uc.Chat(context.Background(), "user-1", "q1")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	threadID, err := f.uc.Reset(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if threadID == first.ThreadID {
		t.Fatalf("reset must issue a new thread id")
	}

	second, err := f.uc.Chat(context.Background(), "user-1", "q2")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if second.ThreadID != threadID || second.IsFollowUp {
		t.Fatalf("second turn must run on the new, empty thread: %+v", second)
	}
	if f.completer.count(callFollowUp) != 0 {
		t.Fatalf("old history leaked into the new thread")
	}
}

func TestChatKeepsUsersApart(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)

	a, err := f.uc.Chat(context.Background(), "alice", "q")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	b, err := f.uc.Chat(context.Background(), "bob", "q")
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if a.ThreadID == b.ThreadID {
		t.Fatalf("users must not share threads")
	}
}

func TestChatRejectsMissingUser(t *testing.T) {
	f := newChatFixture(t, baseReplies(), domain.DefaultMaxTurns, domain.DefaultMemoryWindow)
	if _, err := f.uc.Chat(context.Background(), " ", "q"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
