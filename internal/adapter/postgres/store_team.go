package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencouncil/councild/internal/domain/team"
)

const teamColumns = `
	id, canonical_name, aliases, members, wallets, application_ids,
	successful_grants, failed_grants, total_funded, milestone_completion_rate,
	reputation_signals, created_at, updated_at`

// SaveTeam upserts a team profile by canonical name.
func (s *Store) SaveTeam(ctx context.Context, p *team.Profile) error {
	members, err := json.Marshal(p.Members)
	if err != nil {
		return fmt.Errorf("marshal members: %w", err)
	}
	var signals []byte
	if p.ReputationSignals != nil {
		signals, err = json.Marshal(p.ReputationSignals)
		if err != nil {
			return fmt.Errorf("marshal reputation_signals: %w", err)
		}
	}

	const q = `
		INSERT INTO teams (
			id, canonical_name, aliases, members, wallets, application_ids,
			successful_grants, failed_grants, total_funded, milestone_completion_rate,
			reputation_signals, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (canonical_name) DO UPDATE SET
			aliases = EXCLUDED.aliases,
			members = EXCLUDED.members,
			wallets = EXCLUDED.wallets,
			application_ids = EXCLUDED.application_ids,
			successful_grants = EXCLUDED.successful_grants,
			failed_grants = EXCLUDED.failed_grants,
			total_funded = EXCLUDED.total_funded,
			milestone_completion_rate = EXCLUDED.milestone_completion_rate,
			reputation_signals = EXCLUDED.reputation_signals,
			updated_at = EXCLUDED.updated_at`

	_, err = s.pool.Exec(ctx, q,
		p.ID, p.CanonicalName, pgTextArray(p.Aliases), members, pgTextArray(p.Wallets),
		pgTextArray(p.ApplicationIDs), p.SuccessfulGrants, p.FailedGrants,
		p.TotalFunded, p.MilestoneCompletionRate, signals, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save team %s: %w", p.CanonicalName, err)
	}
	return nil
}

// GetTeam retrieves a team profile by ID.
func (s *Store) GetTeam(ctx context.Context, id string) (*team.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)

	p, err := scanTeam(row)
	if err != nil {
		return nil, notFoundWrap(err, "get team %s", id)
	}
	return p, nil
}

// GetTeamByName matches canonical name or any alias.
func (s *Store) GetTeamByName(ctx context.Context, name string) (*team.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams
		 WHERE canonical_name = $1 OR $1 = ANY(aliases)`, name)

	p, err := scanTeam(row)
	if err != nil {
		return nil, notFoundWrap(err, "get team by name %q", name)
	}
	return p, nil
}

// GetTeamByWallet matches any recorded wallet address.
func (s *Store) GetTeamByWallet(ctx context.Context, wallet string) (*team.Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE $1 = ANY(wallets)`, wallet)

	p, err := scanTeam(row)
	if err != nil {
		return nil, notFoundWrap(err, "get team by wallet %s", wallet)
	}
	return p, nil
}

func scanTeam(row scannable) (*team.Profile, error) {
	var p team.Profile
	var members, signals []byte
	err := row.Scan(
		&p.ID, &p.CanonicalName, &p.Aliases, &members, &p.Wallets, &p.ApplicationIDs,
		&p.SuccessfulGrants, &p.FailedGrants, &p.TotalFunded, &p.MilestoneCompletionRate,
		&signals, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &p.Members); err != nil {
		return nil, fmt.Errorf("unmarshal members: %w", err)
	}
	if signals != nil {
		if err := json.Unmarshal(signals, &p.ReputationSignals); err != nil {
			return nil, fmt.Errorf("unmarshal reputation_signals: %w", err)
		}
	}
	return &p, nil
}
