package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrValidation          = errors.New("invalid run submission")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConcurrencyConflict = errors.New("concurrent modification detected")
	ErrApprovalRequired    = errors.New("plan is not approved")
	ErrQualityGateFailure  = errors.New("enhancement retry budget exhausted")
	ErrTransientExecution  = errors.New("transient stage execution failure")
	ErrStageFailed         = errors.New("stage reported a permanent failure")
	ErrFatalPipeline       = errors.New("fatal pipeline error")
	ErrJobTerminal         = errors.New("job already reached a terminal state")
	ErrJobCancelled        = errors.New("job cancelled")
	ErrActiveRunExists     = errors.New("an active run already exists for this learner")

	// Infra-boundary errors translated by repositories
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context passed to repository")
)
