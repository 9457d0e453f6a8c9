package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// ConversationUseCase runs conversational turns: it resolves follow-ups
// against the session history, then hands the standalone question to the
// RAG graph.
type ConversationUseCase struct {
	pipeline *pipeline
	timeout  time.Duration
	store    ports.MessageStore
	sessions *SessionManager
	now      func() time.Time
}

func NewConversationUseCase(deps PipelineDeps, store ports.MessageStore, sessions *SessionManager) *ConversationUseCase {
	p, timeout := newPipeline(deps)
	return &ConversationUseCase{
		pipeline: p,
		timeout:  timeout,
		store:    store,
		sessions: sessions,
		now:      time.Now,
	}
}

func (uc *ConversationUseCase) Chat(ctx context.Context, userID, question string) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", fmt.Errorf("question is required"))
	}
	session, err := uc.sessions.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	threadID := session.ThreadID()

	history, err := uc.store.History(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	if turns := domain.UserTurns(history); turns >= session.MaxTurns() {
		return nil, domain.WrapError(domain.ErrTurnLimitReached, "chat", fmt.Errorf("thread %s used %d of %d turns", threadID, turns, session.MaxTurns()))
	}

	runCtx, cancel := context.WithTimeout(ctx, uc.timeout)
	defer cancel()

	started := time.Now()
	rec := domain.NewRecord(question, history)
	err = uc.pipeline.conversationGraph(session.MemoryWindow()).run(runCtx, NodeAnalyzeContext, rec)
	if err != nil {
		uc.pipeline.observer.ObserveRun(runModeConversation, nil, time.Since(started), err)
		return nil, wrapRunError("chat", err)
	}

	// History only grows once the turn has fully succeeded.
	if err := uc.commit(ctx, threadID, rec); err != nil {
		uc.pipeline.observer.ObserveRun(runModeConversation, nil, time.Since(started), err)
		return nil, err
	}

	answer := answerFromRecord(threadID, rec)
	uc.pipeline.observer.ObserveRun(runModeConversation, answer, time.Since(started), nil)
	uc.pipeline.logger.Info("chat_turn_completed",
		slog.String("thread_id", threadID),
		slog.Bool("is_followup", answer.IsFollowUp),
		slog.Bool("needs_clarification", answer.NeedsClarification),
		slog.Float64("quality_score", answer.QualityScore),
		slog.Int("iterations", answer.Iterations),
		slog.Duration("duration", time.Since(started)),
	)
	return answer, nil
}

// Reset starts a new thread for the user; the old history is never read again.
func (uc *ConversationUseCase) Reset(ctx context.Context, userID string) (string, error) {
	session, err := uc.sessions.Reset(ctx, userID)
	if err != nil {
		return "", err
	}
	uc.pipeline.logger.Info("session_reset", slog.String("thread_id", session.ThreadID()))
	return session.ThreadID(), nil
}

func (uc *ConversationUseCase) commit(ctx context.Context, threadID string, rec *domain.Record) error {
	now := uc.now().UTC()
	messages := []domain.Message{
		{
			ID:        uuid.NewString(),
			ThreadID:  threadID,
			Role:      domain.RoleUser,
			Content:   rec.OriginalQuestion,
			CreatedAt: now,
		},
		{
			ID:        uuid.NewString(),
			ThreadID:  threadID,
			Role:      domain.RoleAssistant,
			Content:   rec.Generation,
			CreatedAt: now,
		},
	}
	if err := uc.store.AppendTurn(ctx, threadID, messages); err != nil {
		return fmt.Errorf("commit turn: %w", err)
	}
	return nil
}
