package model

import "time"

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// CourseModuleOutline is one planned module of the course structure.
type CourseModuleOutline struct {
	Index     int    `json:"index"`
	Title     string `json:"title"`
	Objective string `json:"objective"`
	Mandatory bool   `json:"mandatory"`
}

// Plan is the planning stage's output: course structure, prioritized skill
// gaps, a research strategy and the learning path for one employee. Mutable
// until approved, immutable afterwards except for audit timestamps.
type Plan struct {
	ID               string
	EmployeeID       string
	SessionID        string
	CourseTitle      string
	Modules          []CourseModuleOutline
	PrioritizedGaps  []string
	ResearchStrategy string
	LearningPath     string
	ApprovalStatus   ApprovalStatus
	Version          int // optimistic concurrency guard
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ApprovedAt       *time.Time
}

// Approved reports whether the plan has cleared the approval gate.
func (p *Plan) Approved() bool { return p.ApprovalStatus == ApprovalApproved }

// Approve flips a pending plan to approved and stamps the audit field.
func (p *Plan) Approve(now time.Time) {
	p.ApprovalStatus = ApprovalApproved
	p.ApprovedAt = &now
	p.UpdatedAt = now
}

// Reject marks the plan rejected.
func (p *Plan) Reject(now time.Time) {
	p.ApprovalStatus = ApprovalRejected
	p.UpdatedAt = now
}

// MandatoryModule reports whether the module at index must pass the quality
// gate for the run to succeed.
func (p *Plan) MandatoryModule(index int) bool {
	for _, m := range p.Modules {
		if m.Index == index {
			return m.Mandatory
		}
	}
	return false
}
