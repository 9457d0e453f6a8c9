package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// schemaLockKey serializes bootstrap DDL across concurrent api/worker starts.
const schemaLockKey = int64(2026101501)

// MessageRepository is the durable conversation checkpoint. Messages are
// append-only and read back in insertion order.
type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	seq BIGSERIAL PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	thread_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_messages_thread ON conversation_messages(thread_id, seq);

CREATE TABLE IF NOT EXISTS conversation_sessions (
	user_id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *MessageRepository) Append(ctx context.Context, threadID string, message domain.Message) error {
	if strings.TrimSpace(threadID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append message", fmt.Errorf("thread_id is required"))
	}
	message = prepareMessage(message)
	if err := insertMessage(ctx, r.db, threadID, message); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// AppendTurn inserts the messages of one turn in a single transaction.
func (r *MessageRepository) AppendTurn(ctx context.Context, threadID string, messages []domain.Message) error {
	if strings.TrimSpace(threadID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append turn", fmt.Errorf("thread_id is required"))
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, message := range messages {
		if err := insertMessage(ctx, tx, threadID, prepareMessage(message)); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn tx: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertMessage(ctx context.Context, db execer, threadID string, message domain.Message) error {
	_, err := db.ExecContext(ctx, `
INSERT INTO conversation_messages (id, thread_id, role, content, created_at)
VALUES ($1, $2, $3, $4, $5)
`, message.ID, threadID, string(message.Role), message.Content, message.CreatedAt)
	return err
}

func prepareMessage(message domain.Message) domain.Message {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	return message
}

// ClaimThread keeps an existing mapping; the no-op update makes RETURNING
// yield the stored thread on conflict.
func (r *MessageRepository) ClaimThread(ctx context.Context, userID, candidate string) (string, error) {
	var threadID string
	err := r.db.QueryRowContext(ctx, `
INSERT INTO conversation_sessions (user_id, thread_id, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET thread_id = conversation_sessions.thread_id
RETURNING thread_id
`, userID, candidate, time.Now().UTC()).Scan(&threadID)
	if err != nil {
		return "", fmt.Errorf("claim thread: %w", err)
	}
	return threadID, nil
}

func (r *MessageRepository) ReplaceThread(ctx context.Context, userID, threadID string) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO conversation_sessions (user_id, thread_id, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET thread_id = EXCLUDED.thread_id, updated_at = EXCLUDED.updated_at
`, userID, threadID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("replace thread: %w", err)
	}
	return nil
}

func (r *MessageRepository) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, thread_id, role, content, created_at
FROM conversation_messages
WHERE thread_id = $1
ORDER BY seq ASC
`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Message, 0)
	for rows.Next() {
		var (
			msg  domain.Message
			role string
		)
		if err := rows.Scan(&msg.ID, &msg.ThreadID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan thread message: %w", err)
		}
		msg.Role = domain.Role(role)
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread messages: %w", err)
	}
	return out, nil
}

func (r *MessageRepository) NewThreadID() string {
	return uuid.NewString()
}
