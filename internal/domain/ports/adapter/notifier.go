package adapter

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

// RunNotifier informs the assigner when a run reaches a terminal state.
// Delivery failures are logged, never propagated into pipeline control flow.
type RunNotifier interface {
	NotifyRunFinished(ctx context.Context, job *model.Job) error
}
