package service

import (
	"context"
	"fmt"
	"time"

	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/port/database"
)

// ObservationService manages the human-gated observation lifecycle. The
// learning loop only ever creates drafts; promotion to active is a human
// action, and deprecation is terminal.
type ObservationService struct {
	store database.Store
	cfg   config.Learning
}

// NewObservationService creates an ObservationService.
func NewObservationService(store database.Store, cfg config.Learning) *ObservationService {
	return &ObservationService{store: store, cfg: cfg}
}

// List returns observations matching the filter.
func (s *ObservationService) List(ctx context.Context, f database.ObservationFilter) ([]observation.Observation, error) {
	return s.store.ListObservations(ctx, f)
}

// Get returns one observation by id.
func (s *ObservationService) Get(ctx context.Context, id string) (*observation.Observation, error) {
	return s.store.GetObservation(ctx, id)
}

// Promote marks an observation active, recording the reviewer.
func (s *ObservationService) Promote(ctx context.Context, id, reviewer string) (*observation.Observation, error) {
	o, err := s.store.GetObservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load observation %s: %w", id, err)
	}
	if err := o.Promote(reviewer); err != nil {
		return nil, err
	}
	if err := s.store.UpdateObservation(ctx, o); err != nil {
		return nil, fmt.Errorf("update observation %s: %w", id, err)
	}
	return o, nil
}

// Deprecate marks an observation terminal, excluding it from retrieval.
func (s *ObservationService) Deprecate(ctx context.Context, id string) (*observation.Observation, error) {
	o, err := s.store.GetObservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load observation %s: %w", id, err)
	}
	o.Deprecate()
	if err := s.store.UpdateObservation(ctx, o); err != nil {
		return nil, fmt.Errorf("update observation %s: %w", id, err)
	}
	return o, nil
}

// FlagStale returns the ids of active observations that look abandoned:
// used fewer times than the evidence minimum and older than the age limit.
// It only flags; deprecation stays a human action.
func (s *ObservationService) FlagStale(ctx context.Context) ([]string, error) {
	all, err := s.store.ListObservations(ctx, database.ObservationFilter{
		Status: observation.StatusActive,
	})
	if err != nil {
		return nil, fmt.Errorf("list active observations: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.MaxAgeDays)

	var stale []string
	for _, o := range all {
		if o.TimesUsed < s.cfg.MinEvidence && o.CreatedAt.Before(cutoff) {
			stale = append(stale, o.ID)
		}
	}
	return stale, nil
}
