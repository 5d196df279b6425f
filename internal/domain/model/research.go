package model

import "time"

// ResearchFinding is one researched topic with its synthesized summary.
type ResearchFinding struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
	Sources int    `json:"sources"`
}

// ResearchSession holds the research stage's output for a plan. At most one
// session exists per plan.
type ResearchSession struct {
	ID         string
	PlanID     string
	Queries    []string
	Findings   []ResearchFinding
	TopicCount int
	Confidence float64 // [0,1]
	CreatedAt  time.Time
}
