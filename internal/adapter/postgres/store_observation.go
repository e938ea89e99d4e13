package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/port/database"
)

const observationColumns = `
	id, agent_id, pattern, evidence, tags, confidence, status,
	times_used, times_helpful, created_at, last_used_at, validated_at, validated_by`

// CreateObservation inserts a new observation.
func (s *Store) CreateObservation(ctx context.Context, o *observation.Observation) error {
	const q = `
		INSERT INTO observations (
			id, agent_id, pattern, evidence, tags, confidence, status,
			times_used, times_helpful, created_at, last_used_at, validated_at, validated_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err := s.pool.Exec(ctx, q,
		o.ID, o.AgentID, o.Pattern, pgTextArray(o.Evidence), pgTextArray(o.Tags),
		o.Confidence, string(o.Status), o.TimesUsed, o.TimesHelpful,
		o.CreatedAt, nullTime(o.LastUsedAt), nullTime(o.ValidatedAt), o.ValidatedBy,
	)
	if err != nil {
		return fmt.Errorf("create observation: %w", err)
	}
	return nil
}

// GetObservation retrieves an observation by ID.
func (s *Store) GetObservation(ctx context.Context, id string) (*observation.Observation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+observationColumns+` FROM observations WHERE id = $1`, id)

	o, err := scanObservation(row)
	if err != nil {
		return nil, notFoundWrap(err, "get observation %s", id)
	}
	return o, nil
}

// ListObservations returns observations matching the filter. Results are
// ordered by evidence strength, then recency of use, then creation time,
// which is also the injection-priority order for prompts.
func (s *Store) ListObservations(ctx context.Context, f database.ObservationFilter) ([]observation.Observation, error) {
	q := `SELECT ` + observationColumns + ` FROM observations WHERE 1=1`
	args := []any{}

	if f.AgentID != "" {
		args = append(args, f.AgentID)
		q += ` AND agent_id = $` + strconv.Itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		q += ` AND status = $` + strconv.Itoa(len(args))
	}
	if len(f.Tags) > 0 {
		args = append(args, pgTextArray(f.Tags))
		q += ` AND tags && $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var result []observation.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		result = append(result, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Ranking lives in one place (observation.RanksBefore) rather than a
	// parallel SQL ORDER BY, so the limit is applied after the Go sort.
	observation.SortForRetrieval(result)
	if f.Limit > 0 && len(result) > f.Limit {
		result = result[:f.Limit]
	}
	return result, nil
}

// UpdateObservation replaces the mutable fields of an observation.
func (s *Store) UpdateObservation(ctx context.Context, o *observation.Observation) error {
	const q = `
		UPDATE observations SET
			pattern = $2, evidence = $3, tags = $4, confidence = $5, status = $6,
			times_used = $7, times_helpful = $8, last_used_at = $9,
			validated_at = $10, validated_by = $11
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		o.ID, o.Pattern, pgTextArray(o.Evidence), pgTextArray(o.Tags),
		o.Confidence, string(o.Status), o.TimesUsed, o.TimesHelpful,
		nullTime(o.LastUsedAt), nullTime(o.ValidatedAt), o.ValidatedBy,
	)
	return execExpectOne(tag, err, "update observation %s", o.ID)
}

func scanObservation(row scannable) (*observation.Observation, error) {
	var o observation.Observation
	err := row.Scan(
		&o.ID, &o.AgentID, &o.Pattern, &o.Evidence, &o.Tags, &o.Confidence, &o.Status,
		&o.TimesUsed, &o.TimesHelpful, &o.CreatedAt, &o.LastUsedAt, &o.ValidatedAt, &o.ValidatedBy,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
