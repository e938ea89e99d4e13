package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetDecision handles GET /api/v1/applications/{id}/decision
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, err := h.Store.GetDecisionByApplication(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type humanDecisionRequest struct {
	Decision  string `json:"decision"` // approve | reject
	Rationale string `json:"rationale"`
	Reviewer  string `json:"reviewer"`
}

// RecordHumanDecision handles POST /api/v1/applications/{id}/decision
func (h *Handlers) RecordHumanDecision(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readJSON[humanDecisionRequest](w, r)
	if !ok {
		return
	}
	if req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	d, err := h.Council.RecordHumanDecision(r.Context(), id, req.Decision, req.Rationale, req.Reviewer)
	if err != nil {
		writeDomainError(w, err, "decision not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type outcomeRequest struct {
	Success             bool   `json:"success"`
	MilestonesCompleted int    `json:"milestones_completed"`
	MilestonesTotal     int    `json:"milestones_total"`
	Notes               string `json:"notes"`
}

// ReportOutcome handles POST /api/v1/applications/{id}/outcome
func (h *Handlers) ReportOutcome(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readJSON[outcomeRequest](w, r)
	if !ok {
		return
	}

	if err := h.Council.ReportOutcome(r.Context(), id, req.Success, req.MilestonesCompleted, req.MilestonesTotal, req.Notes); err != nil {
		writeDomainError(w, err, "application not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}
