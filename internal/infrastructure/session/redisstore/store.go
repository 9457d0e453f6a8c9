package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

const defaultKeyPrefix = "adaptive-rag:"

// Store keeps each thread as a Redis list of JSON messages and each user's
// current thread as a plain key, so several API replicas serve the same
// sessions.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

type Option func(*Store)

func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithTTL expires idle threads and user mappings; the TTL is refreshed on
// every append and every session lookup.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, keyPrefix: defaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial connects and pings before returning.
func Dial(ctx context.Context, addr, password string, db int, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(client, opts...), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) threadKey(threadID string) string {
	return s.keyPrefix + "thread:" + threadID
}

func (s *Store) userKey(userID string) string {
	return s.keyPrefix + "user:" + userID
}

func (s *Store) Append(ctx context.Context, threadID string, message domain.Message) error {
	return s.AppendTurn(ctx, threadID, []domain.Message{message})
}

// AppendTurn pushes all messages with one RPUSH inside a MULTI block.
func (s *Store) AppendTurn(ctx context.Context, threadID string, messages []domain.Message) error {
	if strings.TrimSpace(threadID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "append message", fmt.Errorf("thread_id is required"))
	}
	if len(messages) == 0 {
		return nil
	}
	values := make([]any, 0, len(messages))
	for _, message := range messages {
		if message.ID == "" {
			message.ID = uuid.NewString()
		}
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now().UTC()
		}
		message.ThreadID = threadID

		data, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, data)
	}

	key := s.threadKey(threadID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.WrapError(domain.ErrTemporary, "append message", err)
	}
	return nil
}

// ClaimThread sets the user key only if absent, so replicas racing on a new
// user converge on the first stored thread.
func (s *Store) ClaimThread(ctx context.Context, userID, candidate string) (string, error) {
	key := s.userKey(userID)
	for attempt := 0; attempt < 2; attempt++ {
		stored, err := s.client.SetNX(ctx, key, candidate, s.ttl).Result()
		if err != nil {
			return "", domain.WrapError(domain.ErrTemporary, "claim thread", err)
		}
		if stored {
			return candidate, nil
		}
		threadID, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			// Expired between SETNX and GET.
			continue
		}
		if err != nil {
			return "", domain.WrapError(domain.ErrTemporary, "claim thread", err)
		}
		if s.ttl > 0 {
			if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
				return "", domain.WrapError(domain.ErrTemporary, "claim thread", err)
			}
		}
		return threadID, nil
	}
	return "", domain.WrapError(domain.ErrTemporary, "claim thread", fmt.Errorf("user key for %s kept expiring", userID))
}

func (s *Store) ReplaceThread(ctx context.Context, userID, threadID string) error {
	if err := s.client.Set(ctx, s.userKey(userID), threadID, s.ttl).Err(); err != nil {
		return domain.WrapError(domain.ErrTemporary, "replace thread", err)
	}
	return nil
}

func (s *Store) History(ctx context.Context, threadID string) ([]domain.Message, error) {
	raw, err := s.client.LRange(ctx, s.threadKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "load history", err)
	}
	out := make([]domain.Message, 0, len(raw))
	for i, item := range raw {
		var msg domain.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message %d of thread %s: %w", i, threadID, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *Store) NewThreadID() string {
	return uuid.NewString()
}
