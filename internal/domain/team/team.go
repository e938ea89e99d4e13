// Package team defines the canonical TeamProfile for applicant teams.
// Profiles are created on first sight, updated additively, never deleted.
package team

import (
	"time"

	"github.com/google/uuid"

	"github.com/opencouncil/councild/internal/domain/application"
)

// Profile is the canonical identity and history of an applicant team.
type Profile struct {
	ID            string                   `json:"id"`
	CanonicalName string                   `json:"canonical_name"`
	Aliases       []string                 `json:"aliases,omitempty"`
	Members       []application.TeamMember `json:"members,omitempty"`
	Wallets       []string                 `json:"wallets,omitempty"`

	ApplicationIDs []string `json:"application_ids,omitempty"`

	SuccessfulGrants        int     `json:"successful_grants"`
	FailedGrants            int     `json:"failed_grants"`
	TotalFunded             float64 `json:"total_funded"`
	MilestoneCompletionRate float64 `json:"milestone_completion_rate"`

	ReputationSignals map[string]any `json:"reputation_signals,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates a profile for a first-time applicant team.
func New(name string) *Profile {
	now := time.Now().UTC()
	return &Profile{
		ID:            uuid.NewString(),
		CanonicalName: name,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RecordApplication appends an application id, deduplicating.
func (p *Profile) RecordApplication(applicationID string) {
	for _, id := range p.ApplicationIDs {
		if id == applicationID {
			return
		}
	}
	p.ApplicationIDs = append(p.ApplicationIDs, applicationID)
	p.UpdatedAt = time.Now().UTC()
}

// AddWallet appends a wallet address, deduplicating.
func (p *Profile) AddWallet(addr string) {
	if addr == "" {
		return
	}
	for _, w := range p.Wallets {
		if w == addr {
			return
		}
	}
	p.Wallets = append(p.Wallets, addr)
	p.UpdatedAt = time.Now().UTC()
}

// AddAlias records an alternate name the team has applied under.
func (p *Profile) AddAlias(name string) {
	if name == "" || name == p.CanonicalName {
		return
	}
	for _, a := range p.Aliases {
		if a == name {
			return
		}
	}
	p.Aliases = append(p.Aliases, name)
	p.UpdatedAt = time.Now().UTC()
}

// RecordOutcome updates the grant counters after an outcome report.
func (p *Profile) RecordOutcome(success bool, funded float64) {
	if success {
		p.SuccessfulGrants++
	} else {
		p.FailedGrants++
	}
	p.TotalFunded += funded
	p.UpdatedAt = time.Now().UTC()
}

// Context is the summary injected into agent prompts when a team has
// applied before.
type Context struct {
	TeamID                  string  `json:"team_id"`
	CanonicalName           string  `json:"canonical_name"`
	PreviousApplications    int     `json:"previous_applications"`
	SuccessfulGrants        int     `json:"successful_grants"`
	FailedGrants            int     `json:"failed_grants"`
	TotalFunded             float64 `json:"total_funded"`
	MilestoneCompletionRate float64 `json:"milestone_completion_rate"`
}

// Summary builds the prompt-facing context for this profile.
func (p *Profile) Summary() *Context {
	return &Context{
		TeamID:                  p.ID,
		CanonicalName:           p.CanonicalName,
		PreviousApplications:    len(p.ApplicationIDs),
		SuccessfulGrants:        p.SuccessfulGrants,
		FailedGrants:            p.FailedGrants,
		TotalFunded:             p.TotalFunded,
		MilestoneCompletionRate: p.MilestoneCompletionRate,
	}
}
