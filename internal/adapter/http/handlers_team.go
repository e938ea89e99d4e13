package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetTeam handles GET /api/v1/teams/{id}
func (h *Handlers) GetTeam(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := h.Store.GetTeam(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// LookupTeam handles GET /api/v1/teams?name=...
//
// Resolves by canonical name or alias, the same lookup the evaluation
// pipeline uses.
func (h *Handlers) LookupTeam(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name query parameter is required")
		return
	}

	p, err := h.Store.GetTeamByName(r.Context(), name)
	if err != nil {
		writeDomainError(w, err, "team not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}
