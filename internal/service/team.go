package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opencouncil/councild/internal/domain"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/team"
	"github.com/opencouncil/councild/internal/port/cache"
	"github.com/opencouncil/councild/internal/port/database"
)

const teamCacheTTL = 5 * time.Minute

// TeamService resolves applicant teams to canonical profiles. Profiles are
// created on first sight and updated additively; they are never deleted.
type TeamService struct {
	store database.Store
	cache cache.Cache
}

// NewTeamService creates a TeamService. The cache is optional.
func NewTeamService(store database.Store, c cache.Cache) *TeamService {
	return &TeamService{store: store, cache: c}
}

// Resolve finds or creates the profile for an application's team, records
// the application against it, and returns the prompt-facing context.
// Lookup order: team id on the application, then canonical name or alias,
// then any member wallet address.
func (s *TeamService) Resolve(ctx context.Context, app *application.Application) (*team.Context, error) {
	p, err := s.lookup(ctx, app)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolve team for application %s: %w", app.ID, err)
	}

	if p == nil {
		p = team.New(app.TeamName)
	} else {
		p.AddAlias(app.TeamName)
	}

	p.RecordApplication(app.ID)
	p.Members = mergeMembers(p.Members, app.TeamMembers)
	for _, m := range app.TeamMembers {
		p.AddWallet(m.WalletAddress)
	}

	if err := s.store.SaveTeam(ctx, p); err != nil {
		return nil, fmt.Errorf("save team %s: %w", p.CanonicalName, err)
	}
	s.invalidate(ctx, p)

	app.TeamID = p.ID

	return p.Summary(), nil
}

// RecordOutcome updates a team's grant history after an outcome report.
func (s *TeamService) RecordOutcome(ctx context.Context, app *application.Application, success bool) error {
	p, err := s.lookup(ctx, app)
	if err != nil {
		return fmt.Errorf("record outcome for team %s: %w", app.TeamName, err)
	}

	funded := 0.0
	if success {
		funded = app.FundingRequested
	}
	p.RecordOutcome(success, funded)

	if err := s.store.SaveTeam(ctx, p); err != nil {
		return fmt.Errorf("save team %s: %w", p.CanonicalName, err)
	}
	s.invalidate(ctx, p)
	return nil
}

func (s *TeamService) lookup(ctx context.Context, app *application.Application) (*team.Profile, error) {
	if app.TeamID != "" {
		if p, ok := s.cached(ctx, app.TeamID); ok {
			return p, nil
		}
		p, err := s.store.GetTeam(ctx, app.TeamID)
		if err == nil {
			s.remember(ctx, p)
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	p, err := s.store.GetTeamByName(ctx, app.TeamName)
	if err == nil {
		s.remember(ctx, p)
		return p, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	for _, m := range app.TeamMembers {
		if m.WalletAddress == "" {
			continue
		}
		p, err := s.store.GetTeamByWallet(ctx, m.WalletAddress)
		if err == nil {
			s.remember(ctx, p)
			return p, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	return nil, domain.ErrNotFound
}

func (s *TeamService) cached(ctx context.Context, id string) (*team.Profile, bool) {
	if s.cache == nil {
		return nil, false
	}
	data, ok, err := s.cache.Get(ctx, teamCacheKey(id))
	if err != nil || !ok {
		return nil, false
	}
	var p team.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (s *TeamService) remember(ctx context.Context, p *team.Profile) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, teamCacheKey(p.ID), data, teamCacheTTL); err != nil {
		slog.Debug("team cache set failed", "team_id", p.ID, "error", err)
	}
}

func (s *TeamService) invalidate(ctx context.Context, p *team.Profile) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, teamCacheKey(p.ID)); err != nil {
		slog.Debug("team cache delete failed", "team_id", p.ID, "error", err)
	}
}

func teamCacheKey(id string) string {
	return "team:" + id
}

// mergeMembers adds members not already present, matching by name.
func mergeMembers(existing, incoming []application.TeamMember) []application.TeamMember {
	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[m.Name] = true
	}
	for _, m := range incoming {
		if m.Name == "" || seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		existing = append(existing, m)
	}
	return existing
}
