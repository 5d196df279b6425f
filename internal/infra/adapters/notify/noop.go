package notify

import (
	"context"

	"github.com/rs/zerolog"

	"coursegen-pipeline/internal/domain/model"
	"coursegen-pipeline/internal/domain/ports/adapter"
)

var _ adapter.RunNotifier = (*NoopNotifier)(nil)

// NoopNotifier logs terminal runs instead of delivering anywhere. Used for
// local/dev runs without a bot token.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(log *zerolog.Logger) *NoopNotifier { return &NoopNotifier{log: log} }

func (n *NoopNotifier) NotifyRunFinished(ctx context.Context, job *model.Job) error {
	n.log.Info().
		Str("job_id", job.ID).
		Str("employee_id", job.EmployeeID).
		Str("status", string(job.Status)).
		Msg("[noop-notify] run finished")
	return nil
}
