package model

// Stage is one named step of the fixed course-generation workflow.
type Stage string

const (
	StagePlanning         Stage = "planning"
	StageAwaitingApproval Stage = "awaiting_approval"
	StageResearch         Stage = "research"
	StageContentDrafting  Stage = "content_drafting"
	StageQualityCheck     Stage = "quality_check"
	StageEnhancement      Stage = "enhancement"
	StageMultimedia       Stage = "multimedia"
	StageFinalizing       Stage = "finalizing"
	StageCompleted        Stage = "completed"
	StageFailed           Stage = "failed"
)

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// InitialStage is where every fresh job starts.
const InitialStage = StagePlanning

// RouteTable is the legal-edge table of the stage state machine for one
// generation mode. Transitions into StageFailed never appear here: failure is
// a job status mutation, not a handoff, so it leaves no transition record.
type RouteTable struct {
	mode       GenerationMode
	multimedia bool
	edges      map[Stage][]Stage
}

// NewRouteTable builds the edge table for a mode. multimedia only matters for
// ModeFirstModule, which skips the rendering stages unless it is set.
func NewRouteTable(mode GenerationMode, multimedia bool) RouteTable {
	t := RouteTable{mode: mode, multimedia: multimedia, edges: map[Stage][]Stage{}}

	add := func(from Stage, to ...Stage) { t.edges[from] = append(t.edges[from], to...) }

	add(StagePlanning, StageAwaitingApproval)
	switch mode {
	case ModeOutlineOnly:
		add(StageAwaitingApproval, StageCompleted)
		return t
	case ModeFirstModule:
		add(StageAwaitingApproval, StageResearch)
		add(StageResearch, StageContentDrafting)
		add(StageContentDrafting, StageQualityCheck)
		add(StageEnhancement, StageQualityCheck)
		if multimedia {
			add(StageQualityCheck, StageEnhancement, StageMultimedia)
			add(StageMultimedia, StageFinalizing)
			add(StageFinalizing, StageCompleted)
		} else {
			add(StageQualityCheck, StageEnhancement, StageCompleted)
		}
		return t
	default: // ModeFull
		add(StageAwaitingApproval, StageResearch)
		add(StageResearch, StageContentDrafting)
		add(StageContentDrafting, StageQualityCheck)
		add(StageQualityCheck, StageEnhancement, StageMultimedia)
		add(StageEnhancement, StageQualityCheck)
		add(StageMultimedia, StageFinalizing)
		add(StageFinalizing, StageCompleted)
		return t
	}
}

// CanTransition reports whether from→to is a legal edge in this mode.
func (t RouteTable) CanTransition(from, to Stage) bool {
	for _, next := range t.edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the legal successor stages of from. Callers must not mutate
// the returned slice.
func (t RouteTable) Next(from Stage) []Stage {
	return t.edges[from]
}

// Mode returns the generation mode this table was built for.
func (t RouteTable) Mode() GenerationMode { return t.mode }

// SuccessStage returns the single non-enhancement successor of from, used by
// the router when the quality gate passes or the stage has only one way out.
func (t RouteTable) SuccessStage(from Stage) (Stage, bool) {
	for _, next := range t.edges[from] {
		if next != StageEnhancement {
			return next, true
		}
	}
	return "", false
}
