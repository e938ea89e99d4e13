package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Intake       *service.IntakeService
	Council      *service.Council
	Observations *service.ObservationService
	Learning     *service.LearningService
	Store        database.Store
	Gateway      *litellm.Client
	Roster       agent.Roster
}

// --- Applications ---

// CreateApplication handles POST /api/v1/applications
func (h *Handlers) CreateApplication(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[application.CreateRequest](w, r)
	if !ok {
		return
	}

	app, err := h.Intake.CreateStructured(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

type freeformRequest struct {
	RawText  string         `json:"raw_text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateFreeformApplication handles POST /api/v1/applications/freeform
//
// Clients that accept text/event-stream receive the parsing stage events
// as they happen; everyone else gets the parsed application as JSON.
func (h *Handlers) CreateFreeformApplication(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[freeformRequest](w, r)
	if !ok {
		return
	}

	if wantsEventStream(r) {
		sink, ok := sseSink(w)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		// Parsing and evaluation outlive a client disconnect; only the
		// sink is tied to the connection.
		ctx := context.WithoutCancel(r.Context())
		app, err := h.Intake.CreateFreeform(ctx, req.RawText, req.Metadata, sink)
		if err != nil {
			sink(service.Event{Kind: "error", Payload: err.Error()})
			return
		}
		if r.URL.Query().Get("evaluate") == "true" {
			_, _ = h.Council.Run(ctx, app.ID, sink)
		}
		return
	}

	app, err := h.Intake.CreateFreeform(r.Context(), req.RawText, req.Metadata, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// GetApplication handles GET /api/v1/applications/{id}
func (h *Handlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	app, err := h.Store.GetApplication(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "application not found")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// ListApplications handles GET /api/v1/applications
func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	status := application.Status(r.URL.Query().Get("status"))
	apps, err := h.Store.ListApplications(r.Context(), status)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if apps == nil {
		apps = []application.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// EvaluateApplication handles POST /api/v1/applications/{id}/evaluate
//
// With Accept: text/event-stream the full pipeline event stream is sent as
// SSE, ending in a complete or error event. Otherwise the call blocks and
// returns the persisted decision.
func (h *Handlers) EvaluateApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if wantsEventStream(r) {
		sink, ok := sseSink(w)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}
		// The sink stays bound to the live connection, but the pipeline
		// must not inherit its cancellation: a client disconnect would
		// otherwise abort every in-flight gateway call and persist a
		// decision built from degraded evaluations. Errors surface as the
		// stream's terminal error event.
		_, _ = h.Council.Run(context.WithoutCancel(r.Context()), id, sink)
		return
	}

	d, err := h.Council.Run(r.Context(), id, nil)
	if err != nil {
		writeDomainError(w, err, "application not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListAgents handles GET /api/v1/agents
func (h *Handlers) ListAgents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Roster)
}

// GatewayHealth handles GET /api/v1/gateway/health
func (h *Handlers) GatewayHealth(w http.ResponseWriter, r *http.Request) {
	healthy, err := h.Gateway.Health(r.Context())
	status := "ok"
	if !healthy {
		status = "unreachable"
	}
	resp := map[string]string{"status": status}
	if err != nil {
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- SSE plumbing ---

func wantsEventStream(r *http.Request) bool {
	return r.Header.Get("Accept") == "text/event-stream"
}

// sseSink prepares the response for server-sent events and returns a sink
// that writes one frame per pipeline event.
func sseSink(w http.ResponseWriter) (service.EventSink, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()

	return func(e service.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Kind, data)
		f.Flush()
	}, true
}
