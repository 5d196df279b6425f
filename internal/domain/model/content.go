package model

import "time"

type ContentStatus string

const (
	ContentStatusDraft          ContentStatus = "draft"
	ContentStatusQualityChecked ContentStatus = "quality_checked"
	ContentStatusEnhanced       ContentStatus = "enhanced"
	ContentStatusFinal          ContentStatus = "final"
)

// Section names every module carries. The orchestrator treats section text as
// opaque; only the fixed set of names matters to it.
const (
	SectionIntroduction = "introduction"
	SectionCoreContent  = "core_content"
	SectionPractical    = "practical_applications"
	SectionCaseStudies  = "case_studies"
	SectionAssessments  = "assessments"
)

// SectionNames lists the named sections in presentation order.
var SectionNames = []string{
	SectionIntroduction,
	SectionCoreContent,
	SectionPractical,
	SectionCaseStudies,
	SectionAssessments,
}

// ContentSection is the text of one named section plus its word count.
type ContentSection struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// ModuleContent is one module's generated content. It cycles through
// draft → quality_checked/enhanced until the gate passes, then freezes at
// final. Finalized content is immutable.
type ModuleContent struct {
	ID                string
	PlanID            string
	ModuleIndex       int
	Sections          map[string]ContentSection
	Status            ContentStatus
	EnhancementCount  int
	NeedsManualReview bool
	Version           int // optimistic concurrency guard
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Final reports whether the content is frozen.
func (c *ModuleContent) Final() bool { return c.Status == ContentStatusFinal }

// TotalWords sums the word counts across all sections.
func (c *ModuleContent) TotalWords() int {
	total := 0
	for _, s := range c.Sections {
		total += s.WordCount
	}
	return total
}
