package adapter

import (
	"context"

	"coursegen-pipeline/internal/domain/model"
)

type StageStatus string

const (
	StageSuccess          StageStatus = "success"
	StageTransientFailure StageStatus = "transient_failure"
	StagePermanentFailure StageStatus = "permanent_failure"
)

// StageResult is the structured completion signal every executor returns.
// The router never infers transitions from generated text; it only reads
// this signal.
type StageResult struct {
	Status StageStatus
	// OutputRef is the opaque id of the entity the stage persisted (plan,
	// research session or module content). Downstream stages re-fetch the
	// entity from the store; payloads are never carried inline.
	OutputRef string
	// NextStageHint is the stage the executor believes comes next. The
	// router validates it against the legal-edge table and rejects illegal
	// hints as fatal.
	NextStageHint model.Stage
	// Detail carries a human-readable failure cause for non-success results.
	Detail string
}

// StageExecutor is the uniform contract each generation collaborator
// implements. Execute receives only reference ids and must report completion
// atomically: its output is fully persisted before the result is returned.
//
// Failures the executor can classify are reported via StageResult.Status. An
// error return is reserved for unclassified faults and is treated as
// transient by the supervisor unless wrapped with domain.ErrFatalPipeline.
type StageExecutor interface {
	Stage() model.Stage
	Execute(ctx context.Context, jobID, inputRef string) (StageResult, error)
}
