package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

func setupTestRedis(t *testing.T, opts ...Option) (*miniredis.Miniredis, *Store) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, New(client, opts...)
}

func TestAppendAndHistoryRoundTrip(t *testing.T) {
	_, store := setupTestRedis(t)
	ctx := context.Background()
	threadID := store.NewThreadID()

	if err := store.Append(ctx, threadID, domain.Message{Role: domain.RoleUser, Content: "What is a perceptron?"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, threadID, domain.Message{Role: domain.RoleAssistant, Content: "A linear classifier."}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	history, err := store.History(ctx, threadID)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != domain.RoleUser || history[1].Content != "A linear classifier." {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[0].ThreadID != threadID || history[0].ID == "" {
		t.Fatalf("expected thread id and message id to be stored, got %+v", history[0])
	}
}

func TestKeysUsePrefix(t *testing.T) {
	mr, store := setupTestRedis(t, WithKeyPrefix("test:"))
	if err := store.Append(context.Background(), "t1", domain.Message{Role: domain.RoleUser, Content: "x"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if !mr.Exists("test:thread:t1") {
		t.Fatalf("expected key test:thread:t1, have %v", mr.Keys())
	}
}

func TestThreadExpiresAfterTTL(t *testing.T) {
	mr, store := setupTestRedis(t, WithTTL(time.Minute))
	ctx := context.Background()
	_ = store.Append(ctx, "t1", domain.Message{Role: domain.RoleUser, Content: "x"})

	mr.FastForward(2 * time.Minute)

	history, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected expired thread to be empty, got %d", len(history))
	}
}

func TestHistoryReportsUnavailableRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	store := New(client)
	mr.Close()

	if _, err := store.History(context.Background(), "t1"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestAppendTurnStoresAllMessagesInOnePush(t *testing.T) {
	mr, store := setupTestRedis(t)
	ctx := context.Background()

	turn := []domain.Message{
		{Role: domain.RoleUser, Content: "q1"},
		{Role: domain.RoleAssistant, Content: "a1"},
	}
	if err := store.AppendTurn(ctx, "t1", turn); err != nil {
		t.Fatalf("AppendTurn() error = %v", err)
	}
	history, err := store.History(ctx, "t1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Content != "q1" || history[1].Content != "a1" {
		t.Fatalf("unexpected history %+v", history)
	}

	mr.Close()
	if err := store.AppendTurn(ctx, "t1", turn); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestClaimThreadIsSharedBetweenReplicas(t *testing.T) {
	mr, first := setupTestRedis(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	second := New(client)
	ctx := context.Background()

	claimed, err := first.ClaimThread(ctx, "user-1", "thread-a")
	if err != nil {
		t.Fatalf("ClaimThread() error = %v", err)
	}
	if claimed != "thread-a" {
		t.Fatalf("first claim must store the candidate, got %q", claimed)
	}
	again, err := second.ClaimThread(ctx, "user-1", "thread-b")
	if err != nil {
		t.Fatalf("ClaimThread() error = %v", err)
	}
	if again != "thread-a" {
		t.Fatalf("second replica must see thread-a, got %q", again)
	}

	if err := second.ReplaceThread(ctx, "user-1", "thread-c"); err != nil {
		t.Fatalf("ReplaceThread() error = %v", err)
	}
	afterReset, _ := first.ClaimThread(ctx, "user-1", "thread-d")
	if afterReset != "thread-c" {
		t.Fatalf("reset on one replica must be visible on the other, got %q", afterReset)
	}
}

func TestUserMappingExpiresAfterTTL(t *testing.T) {
	mr, store := setupTestRedis(t, WithTTL(time.Minute))
	ctx := context.Background()
	_, _ = store.ClaimThread(ctx, "user-1", "thread-a")

	if ttl := mr.TTL("adaptive-rag:user:user-1"); ttl != time.Minute {
		t.Fatalf("expected user key ttl of 1m, got %v", ttl)
	}
	mr.FastForward(2 * time.Minute)

	claimed, err := store.ClaimThread(ctx, "user-1", "thread-b")
	if err != nil {
		t.Fatalf("ClaimThread() error = %v", err)
	}
	if claimed != "thread-b" {
		t.Fatalf("expired mapping must be replaced, got %q", claimed)
	}
}
