// Package application defines the grant Application entity and its status
// lifecycle.
package application

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of an application in the pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusEvaluating   Status = "evaluating"
	StatusDeliberating Status = "deliberating"
	StatusAutoApproved Status = "auto_approved"
	StatusAutoRejected Status = "auto_rejected"
	StatusNeedsReview  Status = "needs_review"
	StatusApproved     Status = "approved"
	StatusRejected     Status = "rejected"
)

// transitions is the set of legal forward moves. Human override is the only
// path out of a routed state; there is no path backward.
var transitions = map[Status][]Status{
	StatusPending:      {StatusEvaluating},
	StatusEvaluating:   {StatusDeliberating},
	StatusDeliberating: {StatusAutoApproved, StatusAutoRejected, StatusNeedsReview},
	StatusNeedsReview:  {StatusApproved, StatusRejected},
	StatusAutoApproved: {StatusApproved, StatusRejected},
	StatusAutoRejected: {StatusApproved, StatusRejected},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TeamMember is a member of the applicant team.
type TeamMember struct {
	Name          string `json:"name"`
	Role          string `json:"role"`
	WalletAddress string `json:"wallet_address,omitempty"`
	GitHub        string `json:"github,omitempty"`
	Bio           string `json:"bio,omitempty"`
}

// Milestone is one project milestone. FundingPercentage values are advisory:
// they should sum to 100 across milestones but are never validated or
// corrected, only surfaced to evaluators.
type Milestone struct {
	Title             string   `json:"title"`
	Description       string   `json:"description,omitempty"`
	Deliverables      []string `json:"deliverables,omitempty"`
	Timeline          string   `json:"timeline,omitempty"`
	FundingAmount     float64  `json:"funding_amount,omitempty"`
	FundingPercentage float64  `json:"funding_percentage,omitempty"`
}

// BudgetItem is a line item in the budget breakdown.
type BudgetItem struct {
	Category      string  `json:"category"`
	Description   string  `json:"description,omitempty"`
	Amount        float64 `json:"amount"`
	Justification string  `json:"justification,omitempty"`
}

// Application is a grant application. Immutable after creation except for
// Status, which only moves through the transition table above.
type Application struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Summary string `json:"summary,omitempty"`

	TeamName    string       `json:"team_name"`
	TeamID      string       `json:"team_id,omitempty"`
	TeamMembers []TeamMember `json:"team_members,omitempty"`

	Description       string `json:"description,omitempty"`
	ProblemStatement  string `json:"problem_statement,omitempty"`
	ProposedSolution  string `json:"proposed_solution,omitempty"`
	TechnicalApproach string `json:"technical_approach,omitempty"`
	PriorWork         string `json:"prior_work,omitempty"`

	FundingRequested float64      `json:"funding_requested"`
	FundingCurrency  string       `json:"funding_currency"`
	BudgetBreakdown  []BudgetItem `json:"budget_breakdown,omitempty"`
	Milestones       []Milestone  `json:"milestones,omitempty"`

	ProgramID string `json:"program_id,omitempty"`
	RoundID   string `json:"round_id,omitempty"`

	Website string `json:"website,omitempty"`
	GitHub  string `json:"github,omitempty"`
	Demo    string `json:"demo,omitempty"`

	RawSubmission map[string]any `json:"raw_submission,omitempty"`

	Status      Status    `json:"status"`
	SubmittedAt time.Time `json:"submitted_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// New creates a pending application with a fresh id.
func New(title, teamName string) *Application {
	now := time.Now().UTC()
	return &Application{
		ID:              uuid.NewString(),
		Title:           title,
		TeamName:        teamName,
		FundingCurrency: "USD",
		Status:          StatusPending,
		SubmittedAt:     now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Transition moves the application to a new status, rejecting illegal moves.
func (a *Application) Transition(to Status) error {
	if !CanTransition(a.Status, to) {
		return errors.New("application " + a.ID + ": cannot move " + string(a.Status) + " -> " + string(to))
	}
	a.Status = to
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateRequest holds the fields accepted for a structured submission.
type CreateRequest struct {
	Title             string         `json:"title"`
	Summary           string         `json:"summary"`
	Description       string         `json:"description"`
	TeamName          string         `json:"team_name"`
	TeamMembers       []TeamMember   `json:"team_members"`
	ProblemStatement  string         `json:"problem_statement"`
	ProposedSolution  string         `json:"proposed_solution"`
	TechnicalApproach string         `json:"technical_approach"`
	PriorWork         string         `json:"prior_work"`
	FundingRequested  float64        `json:"funding_requested"`
	FundingCurrency   string         `json:"funding_currency"`
	BudgetBreakdown   []BudgetItem   `json:"budget_breakdown"`
	Milestones        []Milestone    `json:"milestones"`
	ProgramID         string         `json:"program_id"`
	RoundID           string         `json:"round_id"`
	Website           string         `json:"website"`
	GitHub            string         `json:"github"`
	Demo              string         `json:"demo"`
	RawSubmission     map[string]any `json:"raw_submission"`
}

// Validate checks the minimum fields a submission needs.
func (r *CreateRequest) Validate() error {
	if r.Title == "" {
		return errors.New("title is required")
	}
	if r.TeamName == "" {
		return errors.New("team_name is required")
	}
	if r.FundingRequested < 0 {
		return errors.New("funding_requested must not be negative")
	}
	return nil
}
