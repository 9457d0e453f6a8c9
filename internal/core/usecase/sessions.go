package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/core/ports"
)

// SessionManager maps user ids to their current session. The user-to-thread
// mapping lives in the session store, so every replica and every restart
// resolves the same thread. Sessions are immutable values; a reset stores a
// new one with a fresh thread id.
type SessionManager struct {
	store        ports.SessionStore
	newThreadID  func() string
	maxTurns     int
	memoryWindow int
}

// NewSessionManager validates the session limits up front so that Get never
// fails on configuration.
func NewSessionManager(store ports.SessionStore, newThreadID func() string, maxTurns, memoryWindow int) (*SessionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("new session manager: session store is required")
	}
	if newThreadID == nil {
		return nil, fmt.Errorf("new session manager: thread id generator is required")
	}
	if _, err := domain.NewSession(newThreadID(), maxTurns, memoryWindow); err != nil {
		return nil, err
	}
	return &SessionManager{
		store:        store,
		newThreadID:  newThreadID,
		maxTurns:     maxTurns,
		memoryWindow: memoryWindow,
	}, nil
}

// Get returns the user's session, creating it on first interaction.
func (m *SessionManager) Get(ctx context.Context, userID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, domain.WrapError(domain.ErrInvalidInput, "get session", fmt.Errorf("user_id is required"))
	}
	threadID, err := m.store.ClaimThread(ctx, userID, m.newThreadID())
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return domain.NewSession(threadID, m.maxTurns, m.memoryWindow)
}

// Reset discards the user's session and starts a new thread.
func (m *SessionManager) Reset(ctx context.Context, userID string) (domain.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Session{}, domain.WrapError(domain.ErrInvalidInput, "reset session", fmt.Errorf("user_id is required"))
	}
	session, err := domain.NewSession(m.newThreadID(), m.maxTurns, m.memoryWindow)
	if err != nil {
		return domain.Session{}, err
	}
	if err := m.store.ReplaceThread(ctx, userID, session.ThreadID()); err != nil {
		return domain.Session{}, fmt.Errorf("reset session: %w", err)
	}
	return session, nil
}
