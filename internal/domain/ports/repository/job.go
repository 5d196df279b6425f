package repository

import (
	"context"
	"time"

	"coursegen-pipeline/internal/domain/model"
)

type JobRepository interface {
	// Save inserts or upserts the job row.
	Save(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)
	FindByPlanID(ctx context.Context, tx Tx, planID string) (*model.Job, error)
	// FindActiveByEmployee returns the running job for the identifying
	// parameters, or ErrNotFound. Backs the duplicate-submission check.
	FindActiveByEmployee(ctx context.Context, tx Tx, employeeID, companyID string) (*model.Job, error)
	// ListStale returns running jobs whose last update predates cutoff;
	// the pipeline runner resumes them after a crash.
	ListStale(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.Job, error)
}
