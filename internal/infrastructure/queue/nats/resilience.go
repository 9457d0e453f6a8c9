package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	if errors.Is(err, nats.ErrNoServers) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrDisconnected) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

// Error kinds survive the wire as short names so the requesting side can
// map them back to the same HTTP statuses.
var errorKinds = []struct {
	name string
	kind error
}{
	{name: "invalid_input", kind: domain.ErrInvalidInput},
	{name: "invalid_session", kind: domain.ErrInvalidSession},
	{name: "turn_limit_reached", kind: domain.ErrTurnLimitReached},
	{name: "timeout", kind: domain.ErrTimeout},
	{name: "temporary", kind: domain.ErrTemporary},
}

func errorKind(err error) string {
	for _, k := range errorKinds {
		if domain.IsKind(err, k.kind) {
			return k.name
		}
	}
	return ""
}

func errorFromKind(name, message string) error {
	for _, k := range errorKinds {
		if k.name == name {
			return domain.WrapError(k.kind, "remote query", errors.New(message))
		}
	}
	return fmt.Errorf("remote query: %s", message)
}
