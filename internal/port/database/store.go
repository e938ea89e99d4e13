// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/decision"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/domain/team"
)

// ObservationFilter narrows ListObservations. Zero values mean "any".
// Tags match by intersection: an observation qualifies when it shares at
// least one tag with the filter.
type ObservationFilter struct {
	AgentID string
	Status  observation.Status
	Tags    []string
	Limit   int
}

// Store is the port interface for database operations.
type Store interface {
	// Applications
	CreateApplication(ctx context.Context, app *application.Application) error
	GetApplication(ctx context.Context, id string) (*application.Application, error)
	ListApplications(ctx context.Context, status application.Status) ([]application.Application, error)
	UpdateApplication(ctx context.Context, app *application.Application) error
	UpdateApplicationStatus(ctx context.Context, id string, status application.Status) error

	// Decisions — exactly one per application; saving replaces.
	SaveDecision(ctx context.Context, d *decision.Decision) error
	GetDecisionByApplication(ctx context.Context, applicationID string) (*decision.Decision, error)

	// Observations
	CreateObservation(ctx context.Context, o *observation.Observation) error
	GetObservation(ctx context.Context, id string) (*observation.Observation, error)
	ListObservations(ctx context.Context, f ObservationFilter) ([]observation.Observation, error)
	UpdateObservation(ctx context.Context, o *observation.Observation) error

	// Team profiles
	SaveTeam(ctx context.Context, p *team.Profile) error
	GetTeam(ctx context.Context, id string) (*team.Profile, error)
	GetTeamByName(ctx context.Context, name string) (*team.Profile, error)
	GetTeamByWallet(ctx context.Context, wallet string) (*team.Profile, error)
}
