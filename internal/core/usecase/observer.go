package usecase

import (
	"time"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
)

// NoopObserver discards pipeline telemetry.
type NoopObserver struct{}

func (NoopObserver) ObserveNode(string, time.Duration, error) {}

func (NoopObserver) ObserveRun(string, *domain.Answer, time.Duration, error) {}

func (NoopObserver) ObserveRerank(string, int, int) {}
