package repository

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

// HandoffRepository is the router's append-only transition log.
type HandoffRepository interface {
	Append(ctx context.Context, tx Tx, rec *model.HandoffRecord) error
	// Latest returns the most recent committed transition for a job, or
	// domain.ErrNotFound for a job that never advanced.
	Latest(ctx context.Context, tx Tx, jobID string) (*model.HandoffRecord, error)
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.HandoffRecord, error)
}
