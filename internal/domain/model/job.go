package model

import "time"

type GenerationMode string

const (
	ModeFull        GenerationMode = "full"
	ModeFirstModule GenerationMode = "first_module"
	ModeOutlineOnly GenerationMode = "outline_only"
)

// ValidMode reports whether m is one of the supported generation modes.
func ValidMode(m GenerationMode) bool {
	switch m {
	case ModeFull, ModeFirstModule, ModeOutlineOnly:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the durable anchor of one course-generation run. It is created once
// per run request and never deleted; terminal jobs stay around as the audit
// trail and resume anchor.
type Job struct {
	ID              string
	EmployeeID      string
	CompanyID       string
	AssignedByID    string
	Mode            GenerationMode
	Status          JobStatus
	CurrentStage    Stage
	PlanID          string // set after the planning stage commits
	Error           string
	CancelRequested bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Terminal reports whether the job has finished, successfully or not.
func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// NewJob builds a running job positioned at the initial stage.
func NewJob(id, employeeID, companyID, assignedByID string, mode GenerationMode) *Job {
	now := time.Now()
	return &Job{
		ID:           id,
		EmployeeID:   employeeID,
		CompanyID:    companyID,
		AssignedByID: assignedByID,
		Mode:         mode,
		Status:       JobStatusRunning,
		CurrentStage: InitialStage,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
