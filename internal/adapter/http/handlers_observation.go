package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/service"
)

// ListObservations handles GET /api/v1/observations
func (h *Handlers) ListObservations(w http.ResponseWriter, r *http.Request) {
	f := database.ObservationFilter{
		AgentID: r.URL.Query().Get("agent_id"),
		Status:  observation.Status(r.URL.Query().Get("status")),
		Limit:   queryInt(r, "limit", 100),
	}
	if tags := r.URL.Query().Get("tags"); tags != "" {
		f.Tags = strings.Split(tags, ",")
	}

	obs, err := h.Observations.List(r.Context(), f)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if obs == nil {
		obs = []observation.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

// GetObservation handles GET /api/v1/observations/{id}
func (h *Handlers) GetObservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Observations.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "observation not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type promoteRequest struct {
	Reviewer string `json:"reviewer"`
}

// PromoteObservation handles POST /api/v1/observations/{id}/promote
func (h *Handlers) PromoteObservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readJSON[promoteRequest](w, r)
	if !ok {
		return
	}
	if req.Reviewer == "" {
		writeError(w, http.StatusBadRequest, "reviewer is required")
		return
	}

	o, err := h.Observations.Promote(r.Context(), id, req.Reviewer)
	if err != nil {
		writeDomainError(w, err, "observation not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// DeprecateObservation handles POST /api/v1/observations/{id}/deprecate
func (h *Handlers) DeprecateObservation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	o, err := h.Observations.Deprecate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "observation not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// FlagStaleObservations handles GET /api/v1/observations/stale
//
// Returns candidate ids only. Deprecation stays a separate, explicit call.
func (h *Handlers) FlagStaleObservations(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Observations.FlagStale(r.Context())
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"stale": ids})
}

type bootstrapRequest struct {
	History []service.HistoricalApplication `json:"history"`
}

// BootstrapAgent handles POST /api/v1/agents/{id}/bootstrap
func (h *Handlers) BootstrapAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	req, ok := readJSON[bootstrapRequest](w, r)
	if !ok {
		return
	}

	created, err := h.Learning.Bootstrap(r.Context(), id, req.History)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, created)
}
