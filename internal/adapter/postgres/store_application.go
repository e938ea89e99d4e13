package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencouncil/councild/internal/domain/application"
)

const applicationColumns = `
	id, title, summary, team_name, COALESCE(team_id::text, ''), team_members,
	description, problem_statement, proposed_solution, technical_approach, prior_work,
	funding_requested, funding_currency, budget_breakdown, milestones,
	program_id, round_id, website, github, demo, raw_submission,
	status, submitted_at, created_at, updated_at`

// CreateApplication inserts a new application.
func (s *Store) CreateApplication(ctx context.Context, app *application.Application) error {
	members, err := json.Marshal(app.TeamMembers)
	if err != nil {
		return fmt.Errorf("marshal team_members: %w", err)
	}
	budget, err := json.Marshal(app.BudgetBreakdown)
	if err != nil {
		return fmt.Errorf("marshal budget_breakdown: %w", err)
	}
	milestones, err := json.Marshal(app.Milestones)
	if err != nil {
		return fmt.Errorf("marshal milestones: %w", err)
	}
	var raw []byte
	if app.RawSubmission != nil {
		raw, err = json.Marshal(app.RawSubmission)
		if err != nil {
			return fmt.Errorf("marshal raw_submission: %w", err)
		}
	}

	const q = `
		INSERT INTO applications (
			id, title, summary, team_name, team_id, team_members,
			description, problem_statement, proposed_solution, technical_approach, prior_work,
			funding_requested, funding_currency, budget_breakdown, milestones,
			program_id, round_id, website, github, demo, raw_submission,
			status, submitted_at, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25)`

	_, err = s.pool.Exec(ctx, q,
		app.ID, app.Title, app.Summary, app.TeamName, nullIfEmpty(app.TeamID), members,
		app.Description, app.ProblemStatement, app.ProposedSolution, app.TechnicalApproach, app.PriorWork,
		app.FundingRequested, app.FundingCurrency, budget, milestones,
		app.ProgramID, app.RoundID, app.Website, app.GitHub, app.Demo, raw,
		string(app.Status), app.SubmittedAt, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetApplication retrieves an application by ID.
func (s *Store) GetApplication(ctx context.Context, id string) (*application.Application, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id)

	app, err := scanApplication(row)
	if err != nil {
		return nil, notFoundWrap(err, "get application %s", id)
	}
	return app, nil
}

// ListApplications returns applications, optionally filtered by status,
// newest first.
func (s *Store) ListApplications(ctx context.Context, status application.Status) ([]application.Application, error) {
	q := `SELECT ` + applicationColumns + ` FROM applications`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []application.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// UpdateApplication replaces the mutable parsed fields of an application.
func (s *Store) UpdateApplication(ctx context.Context, app *application.Application) error {
	members, err := json.Marshal(app.TeamMembers)
	if err != nil {
		return fmt.Errorf("marshal team_members: %w", err)
	}
	budget, err := json.Marshal(app.BudgetBreakdown)
	if err != nil {
		return fmt.Errorf("marshal budget_breakdown: %w", err)
	}
	milestones, err := json.Marshal(app.Milestones)
	if err != nil {
		return fmt.Errorf("marshal milestones: %w", err)
	}

	const q = `
		UPDATE applications SET
			title = $2, summary = $3, team_name = $4, team_id = $5, team_members = $6,
			description = $7, problem_statement = $8, proposed_solution = $9,
			technical_approach = $10, prior_work = $11,
			funding_requested = $12, funding_currency = $13, budget_breakdown = $14, milestones = $15,
			program_id = $16, round_id = $17, website = $18, github = $19, demo = $20,
			status = $21, updated_at = now()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, q,
		app.ID, app.Title, app.Summary, app.TeamName, nullIfEmpty(app.TeamID), members,
		app.Description, app.ProblemStatement, app.ProposedSolution,
		app.TechnicalApproach, app.PriorWork,
		app.FundingRequested, app.FundingCurrency, budget, milestones,
		app.ProgramID, app.RoundID, app.Website, app.GitHub, app.Demo,
		string(app.Status),
	)
	return execExpectOne(tag, err, "update application %s", app.ID)
}

// UpdateApplicationStatus moves an application to a new status.
func (s *Store) UpdateApplicationStatus(ctx context.Context, id string, status application.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE applications SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(status))
	return execExpectOne(tag, err, "update application status %s", id)
}

func scanApplication(row scannable) (*application.Application, error) {
	var app application.Application
	var members, budget, milestones, raw []byte
	err := row.Scan(
		&app.ID, &app.Title, &app.Summary, &app.TeamName, &app.TeamID, &members,
		&app.Description, &app.ProblemStatement, &app.ProposedSolution, &app.TechnicalApproach, &app.PriorWork,
		&app.FundingRequested, &app.FundingCurrency, &budget, &milestones,
		&app.ProgramID, &app.RoundID, &app.Website, &app.GitHub, &app.Demo, &raw,
		&app.Status, &app.SubmittedAt, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(members, &app.TeamMembers); err != nil {
		return nil, fmt.Errorf("unmarshal team_members: %w", err)
	}
	if err := json.Unmarshal(budget, &app.BudgetBreakdown); err != nil {
		return nil, fmt.Errorf("unmarshal budget_breakdown: %w", err)
	}
	if err := json.Unmarshal(milestones, &app.Milestones); err != nil {
		return nil, fmt.Errorf("unmarshal milestones: %w", err)
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &app.RawSubmission); err != nil {
			return nil, fmt.Errorf("unmarshal raw_submission: %w", err)
		}
	}
	return &app, nil
}
