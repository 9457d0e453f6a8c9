package domain

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// UserTurns counts user messages in a history.
func UserTurns(history []Message) int {
	turns := 0
	for _, msg := range history {
		if msg.Role == RoleUser {
			turns++
		}
	}
	return turns
}

// RecentMessages returns at most the last n messages, in chronological order.
func RecentMessages(history []Message, n int) []Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
