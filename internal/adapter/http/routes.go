package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Applications
		r.Post("/applications", h.CreateApplication)
		r.Post("/applications/freeform", h.CreateFreeformApplication)
		r.Get("/applications", h.ListApplications)
		r.Get("/applications/{id}", h.GetApplication)
		r.Post("/applications/{id}/evaluate", h.EvaluateApplication)

		// Decisions (nested under applications)
		r.Get("/applications/{id}/decision", h.GetDecision)
		r.Post("/applications/{id}/decision", h.RecordHumanDecision)
		r.Post("/applications/{id}/outcome", h.ReportOutcome)

		// Agents
		r.Get("/agents", h.ListAgents)
		r.Post("/agents/{id}/bootstrap", h.BootstrapAgent)

		// Observations (human review of the learning loop)
		r.Get("/observations", h.ListObservations)
		r.Get("/observations/stale", h.FlagStaleObservations)
		r.Get("/observations/{id}", h.GetObservation)
		r.Post("/observations/{id}/promote", h.PromoteObservation)
		r.Post("/observations/{id}/deprecate", h.DeprecateObservation)

		// Teams
		r.Get("/teams", h.LookupTeam)
		r.Get("/teams/{id}", h.GetTeam)

		// Gateway status (proxied to the inference gateway)
		r.Get("/gateway/health", h.GatewayHealth)
	})
}
