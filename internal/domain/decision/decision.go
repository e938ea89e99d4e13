// Package decision defines the aggregated council decision for an
// application, including any later human override.
package decision

import (
	"time"

	"github.com/google/uuid"

	"github.com/opencouncil/councild/internal/domain/evaluation"
)

// Human records a human reviewer's decision on a routed application.
type Human struct {
	Decision  string    `json:"decision"` // approve | reject
	Rationale string    `json:"rationale,omitempty"`
	Reviewer  string    `json:"reviewer"`
	DecidedAt time.Time `json:"decided_at"`
}

// Decision is the council's aggregated outcome for one application. Exactly
// one exists per evaluated application; rerunning evaluation replaces it.
type Decision struct {
	ID            string `json:"id"`
	ApplicationID string `json:"application_id"`

	AverageScore      float64 `json:"average_score"`
	AverageConfidence float64 `json:"average_confidence"`
	ScoreVariance     float64 `json:"score_variance"`

	Recommendation evaluation.Recommendation `json:"recommendation"`

	Evaluations []evaluation.Evaluation `json:"evaluations"`

	AutoExecuted        bool     `json:"auto_executed"`
	RequiresHumanReview bool     `json:"requires_human_review"`
	ReviewReasons       []string `json:"review_reasons,omitempty"`

	Synthesis            string `json:"synthesis,omitempty"`
	FeedbackForApplicant string `json:"feedback_for_applicant,omitempty"`

	// ConvergedEarly is set when deliberation stopped before the round
	// limit because no agent produced a significant revision.
	ConvergedEarly bool `json:"converged_early,omitempty"`
	RoundsRun      int  `json:"rounds_run"`

	Human *Human `json:"human,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}

// New creates an empty decision for the given application.
func New(applicationID string) *Decision {
	return &Decision{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		CreatedAt:     time.Now().UTC(),
	}
}

// IsOverride reports whether a human decision contradicts the council's
// recommendation. Resolving a needs_review either way counts: the council
// abstained and the human committed.
func (d *Decision) IsOverride(humanDecision string) bool {
	switch d.Recommendation {
	case evaluation.RecommendApprove:
		return humanDecision == "reject"
	case evaluation.RecommendReject:
		return humanDecision == "approve"
	case evaluation.RecommendNeedsReview:
		return humanDecision == "approve" || humanDecision == "reject"
	}
	return false
}
