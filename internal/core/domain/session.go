package domain

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultMaxTurns     = 10
	DefaultMemoryWindow = 6
	MaxMemoryWindow     = 20
)

// Session identifies a multi-turn conversation. It is a value with unexported
// fields; once built through NewSession it cannot be changed, only replaced.
type Session struct {
	threadID     string
	maxTurns     int
	memoryWindow int
}

func NewSession(threadID string, maxTurns, memoryWindow int) (Session, error) {
	if _, err := uuid.Parse(threadID); err != nil {
		return Session{}, WrapError(ErrInvalidSession, "new session", fmt.Errorf("thread_id %q is not a uuid: %w", threadID, err))
	}
	if maxTurns < 1 {
		return Session{}, WrapError(ErrInvalidSession, "new session", fmt.Errorf("max_turns must be >= 1, got %d", maxTurns))
	}
	if memoryWindow < 1 || memoryWindow > MaxMemoryWindow {
		return Session{}, WrapError(ErrInvalidSession, "new session", fmt.Errorf("memory_window must be in [1,%d], got %d", MaxMemoryWindow, memoryWindow))
	}
	if memoryWindow > maxTurns {
		return Session{}, WrapError(ErrInvalidSession, "new session", fmt.Errorf("memory_window (%d) cannot exceed max_turns (%d)", memoryWindow, maxTurns))
	}
	return Session{
		threadID:     threadID,
		maxTurns:     maxTurns,
		memoryWindow: memoryWindow,
	}, nil
}

func (s Session) ThreadID() string  { return s.threadID }
func (s Session) MaxTurns() int     { return s.maxTurns }
func (s Session) MemoryWindow() int { return s.memoryWindow }

func (s Session) IsZero() bool { return s.threadID == "" }
