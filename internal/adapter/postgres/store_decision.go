package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencouncil/councild/internal/domain/decision"
)

// SaveDecision upserts the council decision for an application. There is
// exactly one decision per application; rerunning evaluation replaces it.
func (s *Store) SaveDecision(ctx context.Context, d *decision.Decision) error {
	evals, err := json.Marshal(d.Evaluations)
	if err != nil {
		return fmt.Errorf("marshal evaluations: %w", err)
	}
	var human []byte
	if d.Human != nil {
		human, err = json.Marshal(d.Human)
		if err != nil {
			return fmt.Errorf("marshal human decision: %w", err)
		}
	}

	const q = `
		INSERT INTO decisions (
			id, application_id, average_score, average_confidence, score_variance,
			recommendation, evaluations, auto_executed, requires_human_review,
			review_reasons, synthesis, feedback_for_applicant, converged_early,
			rounds_run, human, created_at, decided_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (application_id) DO UPDATE SET
			id = EXCLUDED.id,
			average_score = EXCLUDED.average_score,
			average_confidence = EXCLUDED.average_confidence,
			score_variance = EXCLUDED.score_variance,
			recommendation = EXCLUDED.recommendation,
			evaluations = EXCLUDED.evaluations,
			auto_executed = EXCLUDED.auto_executed,
			requires_human_review = EXCLUDED.requires_human_review,
			review_reasons = EXCLUDED.review_reasons,
			synthesis = EXCLUDED.synthesis,
			feedback_for_applicant = EXCLUDED.feedback_for_applicant,
			converged_early = EXCLUDED.converged_early,
			rounds_run = EXCLUDED.rounds_run,
			human = EXCLUDED.human,
			created_at = EXCLUDED.created_at,
			decided_at = EXCLUDED.decided_at`

	_, err = s.pool.Exec(ctx, q,
		d.ID, d.ApplicationID, d.AverageScore, d.AverageConfidence, d.ScoreVariance,
		string(d.Recommendation), evals, d.AutoExecuted, d.RequiresHumanReview,
		pgTextArray(d.ReviewReasons), d.Synthesis, d.FeedbackForApplicant, d.ConvergedEarly,
		d.RoundsRun, human, d.CreatedAt, nullTime(d.DecidedAt),
	)
	if err != nil {
		return fmt.Errorf("save decision for %s: %w", d.ApplicationID, err)
	}
	return nil
}

// GetDecisionByApplication returns the decision for an application.
func (s *Store) GetDecisionByApplication(ctx context.Context, applicationID string) (*decision.Decision, error) {
	const q = `
		SELECT id, application_id, average_score, average_confidence, score_variance,
		       recommendation, evaluations, auto_executed, requires_human_review,
		       review_reasons, synthesis, feedback_for_applicant, converged_early,
		       rounds_run, human, created_at, decided_at
		FROM decisions WHERE application_id = $1`

	var d decision.Decision
	var evals, human []byte
	err := s.pool.QueryRow(ctx, q, applicationID).Scan(
		&d.ID, &d.ApplicationID, &d.AverageScore, &d.AverageConfidence, &d.ScoreVariance,
		&d.Recommendation, &evals, &d.AutoExecuted, &d.RequiresHumanReview,
		&d.ReviewReasons, &d.Synthesis, &d.FeedbackForApplicant, &d.ConvergedEarly,
		&d.RoundsRun, &human, &d.CreatedAt, &d.DecidedAt,
	)
	if err != nil {
		return nil, notFoundWrap(err, "get decision for application %s", applicationID)
	}
	if err := json.Unmarshal(evals, &d.Evaluations); err != nil {
		return nil, fmt.Errorf("unmarshal evaluations: %w", err)
	}
	if human != nil {
		var h decision.Human
		if err := json.Unmarshal(human, &h); err != nil {
			return nil, fmt.Errorf("unmarshal human decision: %w", err)
		}
		d.Human = &h
	}
	return &d, nil
}
