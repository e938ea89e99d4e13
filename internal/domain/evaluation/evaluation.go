// Package evaluation defines a single agent's evaluation of an application.
package evaluation

import (
	"time"

	"github.com/google/uuid"
)

// Recommendation is an agent's verdict on an application.
type Recommendation string

const (
	RecommendApprove     Recommendation = "approve"
	RecommendReject      Recommendation = "reject"
	RecommendNeedsReview Recommendation = "needs_review"
)

// Valid reports whether r is one of the three known recommendations.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendApprove, RecommendReject, RecommendNeedsReview:
		return true
	}
	return false
}

// Evaluation is one agent's opinion at a point in time. Round 0 is the
// initial evaluation; later rounds are deliberation revisions that reference
// the score they revised from.
type Evaluation struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`
	AgentID       string `json:"agent_id"`
	AgentName     string `json:"agent_name"`

	Score          float64        `json:"score"`      // 0..1
	Recommendation Recommendation `json:"recommendation"`
	Confidence     float64        `json:"confidence"` // 0..1

	Rationale string   `json:"rationale"`
	Strengths []string `json:"strengths,omitempty"`
	Concerns  []string `json:"concerns,omitempty"`
	Questions []string `json:"questions,omitempty"`

	ObservationsUsed []string `json:"observations_used,omitempty"`

	Round             int     `json:"round"`
	Revised           bool    `json:"revised"`
	OriginalScore     float64 `json:"original_score,omitempty"`
	RevisionRationale string  `json:"revision_rationale,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// New creates a round-0 evaluation shell for the given agent.
func New(applicationID, agentID, agentName string) *Evaluation {
	return &Evaluation{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		AgentID:       agentID,
		AgentName:     agentName,
		CreatedAt:     time.Now().UTC(),
	}
}

// Degraded returns the placeholder evaluation recorded when an agent's call
// failed twice. It is deliberately distinguishable: confidence 0 and a
// rationale stating the failure.
func Degraded(applicationID, agentID, agentName, reason string) *Evaluation {
	e := New(applicationID, agentID, agentName)
	e.Score = 0.5
	e.Recommendation = RecommendNeedsReview
	e.Confidence = 0
	e.Rationale = "Evaluation could not be completed: " + reason
	e.Concerns = []string{"evaluation degraded after repeated gateway failure"}
	return e
}

// Clamp forces score and confidence into [0,1].
func (e *Evaluation) Clamp() {
	e.Score = clamp01(e.Score)
	e.Confidence = clamp01(e.Confidence)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
