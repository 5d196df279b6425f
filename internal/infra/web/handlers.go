package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"coursegen-pipeline/internal/domain"
	"coursegen-pipeline/internal/domain/model"
)

type startRunRequest struct {
	EmployeeID   string `json:"employee_id"`
	CompanyID    string `json:"company_id"`
	AssignedByID string `json:"assigned_by_id"`
	Mode         string `json:"mode"`
}

type runResponse struct {
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
	CurrentStage string `json:"current_stage"`
	PlanID       string `json:"plan_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

func toRunResponse(job *model.Job) runResponse {
	return runResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		CurrentStage: string(job.CurrentStage),
		PlanID:       job.PlanID,
		Error:        job.Error,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain sentinels onto HTTP statuses; anything unclassified
// is a 500 with a generic body so internals don't leak.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrConcurrencyConflict), errors.Is(err, domain.ErrActiveRunExists), errors.Is(err, domain.ErrJobTerminal):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrApprovalRequired):
		http.Error(w, err.Error(), http.StatusPreconditionFailed)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !s.auth.CheckAPIKey(req.APIKey) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint()
	if err != nil {
		s.log.Error().Err(err).Msg("token mint failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) startRunHandler(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	mode := model.GenerationMode(req.Mode)
	if req.Mode == "" {
		mode = model.ModeFull
	}
	jobID, err := s.runs.Start(r.Context(), req.EmployeeID, req.CompanyID, req.AssignedByID, mode)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) runStatusHandler(w http.ResponseWriter, r *http.Request) {
	job, err := s.runs.Status(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(job))
}

func (s *Server) runHandoffsHandler(w http.ResponseWriter, r *http.Request) {
	records, err := s.handoffs.ListByJob(r.Context(), nil, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, err)
		return
	}
	type handoff struct {
		FromStage  string    `json:"from_stage"`
		ToStage    string    `json:"to_stage"`
		PayloadRef string    `json:"payload_ref"`
		CreatedAt  time.Time `json:"created_at"`
	}
	out := make([]handoff, 0, len(records))
	for _, rec := range records {
		out = append(out, handoff{
			FromStage:  string(rec.FromStage),
			ToStage:    string(rec.ToStage),
			PayloadRef: rec.PayloadRef,
			CreatedAt:  rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) cancelRunHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.Cancel(r.Context(), chi.URLParam(r, "jobID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type planResponse struct {
	ID               string                      `json:"id"`
	EmployeeID       string                      `json:"employee_id"`
	CourseTitle      string                      `json:"course_title"`
	Modules          []model.CourseModuleOutline `json:"modules"`
	PrioritizedGaps  []string                    `json:"prioritized_gaps"`
	ResearchStrategy string                      `json:"research_strategy"`
	LearningPath     string                      `json:"learning_path"`
	ApprovalStatus   string                      `json:"approval_status"`
	ApprovedAt       *time.Time                  `json:"approved_at,omitempty"`
}

func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := s.plans.FindByID(r.Context(), nil, chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse{
		ID:               plan.ID,
		EmployeeID:       plan.EmployeeID,
		CourseTitle:      plan.CourseTitle,
		Modules:          plan.Modules,
		PrioritizedGaps:  plan.PrioritizedGaps,
		ResearchStrategy: plan.ResearchStrategy,
		LearningPath:     plan.LearningPath,
		ApprovalStatus:   string(plan.ApprovalStatus),
		ApprovedAt:       plan.ApprovedAt,
	})
}

func (s *Server) planContentsHandler(w http.ResponseWriter, r *http.Request) {
	contents, err := s.contents.ListByPlan(r.Context(), nil, chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, err)
		return
	}
	type moduleContent struct {
		ID                string                          `json:"id"`
		ModuleIndex       int                             `json:"module_index"`
		Status            string                          `json:"status"`
		EnhancementCount  int                             `json:"enhancement_count"`
		NeedsManualReview bool                            `json:"needs_manual_review"`
		TotalWords        int                             `json:"total_words"`
		Sections          map[string]model.ContentSection `json:"sections"`
	}
	out := make([]moduleContent, 0, len(contents))
	for _, c := range contents {
		out = append(out, moduleContent{
			ID:                c.ID,
			ModuleIndex:       c.ModuleIndex,
			Status:            string(c.Status),
			EnhancementCount:  c.EnhancementCount,
			NeedsManualReview: c.NeedsManualReview,
			TotalWords:        c.TotalWords(),
			Sections:          c.Sections,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) approvePlanHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.ApprovePlan(r.Context(), chi.URLParam(r, "planID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) rejectPlanHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.runs.RejectPlan(r.Context(), chi.URLParam(r, "planID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resumeRunHandler(w http.ResponseWriter, r *http.Request) {
	jobID, err := s.runs.Resume(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}
