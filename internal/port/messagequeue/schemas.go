package messagequeue

import "time"

// OverridePayload is published on SubjectOverrideRecorded when a human
// decision contradicts the council recommendation.
type OverridePayload struct {
	ApplicationID string    `json:"application_id"`
	DecisionID    string    `json:"decision_id"`
	HumanDecision string    `json:"human_decision"`
	Rationale     string    `json:"rationale,omitempty"`
	Reviewer      string    `json:"reviewer"`
	DecidedAt     time.Time `json:"decided_at"`
}

// OutcomePayload is published on SubjectOutcomeReported when a funded
// project's real-world outcome is recorded.
type OutcomePayload struct {
	ApplicationID       string    `json:"application_id"`
	Success             bool      `json:"success"`
	MilestonesCompleted int       `json:"milestones_completed"`
	MilestonesTotal     int       `json:"milestones_total"`
	Notes               string    `json:"notes,omitempty"`
	ReportedAt          time.Time `json:"reported_at"`
}
