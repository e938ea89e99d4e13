package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	EventCouncilStage      = "council.stage"
	EventApplicationStatus = "application.status"
	EventDecisionReady     = "council.decision"
)

// CouncilStageEvent is broadcast as an evaluation pipeline moves through
// its stages.
type CouncilStageEvent struct {
	ApplicationID string `json:"application_id"`
	Stage         string `json:"stage"`
	State         string `json:"state"` // started | complete
	Round         int    `json:"round,omitempty"`
}

// ApplicationStatusEvent is broadcast when an application's status changes.
type ApplicationStatusEvent struct {
	ApplicationID string `json:"application_id"`
	Status        string `json:"status"`
}

// DecisionReadyEvent is broadcast when the council decision is persisted.
type DecisionReadyEvent struct {
	ApplicationID  string  `json:"application_id"`
	DecisionID     string  `json:"decision_id"`
	Recommendation string  `json:"recommendation"`
	AverageScore   float64 `json:"average_score"`
	AutoExecuted   bool    `json:"auto_executed"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
