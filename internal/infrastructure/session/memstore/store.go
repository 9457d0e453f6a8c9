package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// Store keeps conversation threads and the user-to-thread mapping in process
// memory. Both are lost on restart and are not shared between replicas.
type Store struct {
	mu      sync.RWMutex
	threads map[string][]domain.Message
	current map[string]string
}

func New() *Store {
	return &Store{
		threads: make(map[string][]domain.Message),
		current: make(map[string]string),
	}
}

func (s *Store) Append(ctx context.Context, threadID string, message domain.Message) error {
	return s.AppendTurn(ctx, threadID, []domain.Message{message})
}

func (s *Store) AppendTurn(_ context.Context, threadID string, messages []domain.Message) error {
	if strings.TrimSpace(threadID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append message", fmt.Errorf("thread_id is required"))
	}
	prepared := make([]domain.Message, 0, len(messages))
	for _, message := range messages {
		prepared = append(prepared, prepare(threadID, message))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[threadID] = append(s.threads[threadID], prepared...)
	return nil
}

// History returns a copy; callers may modify it freely.
func (s *Store) History(_ context.Context, threadID string) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message{}, s.threads[threadID]...), nil
}

func (s *Store) NewThreadID() string {
	return uuid.NewString()
}

func (s *Store) ClaimThread(_ context.Context, userID, candidate string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if threadID, ok := s.current[userID]; ok {
		return threadID, nil
	}
	s.current[userID] = candidate
	return candidate, nil
}

func (s *Store) ReplaceThread(_ context.Context, userID, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current[userID] = threadID
	return nil
}

func prepare(threadID string, message domain.Message) domain.Message {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	message.ThreadID = threadID
	return message
}
