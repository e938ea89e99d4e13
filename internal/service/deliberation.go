package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
)

const systemDeliberator = "You are participating in a deliberation. Respond only with valid JSON."

// revisionResponse is the JSON shape agents return during deliberation.
type revisionResponse struct {
	Revised           bool    `json:"revised"`
	Score             float64 `json:"score"`
	Recommendation    string  `json:"recommendation"`
	Confidence        float64 `json:"confidence"`
	RevisionRationale string  `json:"revision_rationale"`
}

// Deliberator runs bounded deliberation rounds in which each agent sees the
// anonymized assessments of its peers and may revise its position.
type Deliberator struct {
	llm     *litellm.Client
	roster  agent.Roster
	cfg     config.Council
	metrics *telemetry.Metrics
}

// NewDeliberator creates a Deliberator.
func NewDeliberator(llm *litellm.Client, roster agent.Roster, cfg config.Council, metrics *telemetry.Metrics) *Deliberator {
	return &Deliberator{
		llm:     llm,
		roster:  roster,
		cfg:     cfg,
		metrics: metrics,
	}
}

// MaxRounds returns the configured deliberation round limit.
func (d *Deliberator) MaxRounds() int {
	return d.cfg.MaxDeliberationRounds
}

// RunRound queries every agent in parallel with its peers' anonymized
// evaluations and returns the updated evaluation set plus the number of
// significant revisions. A failed revision call keeps the agent's previous
// evaluation. The pipeline driver owns the round loop so it can emit
// per-round boundary events and stop on convergence.
func (d *Deliberator) RunRound(ctx context.Context, app *application.Application, evals []*evaluation.Evaluation, round int) ([]*evaluation.Evaluation, int) {
	if d.metrics != nil {
		d.metrics.DeliberationRounds.Add(ctx, 1)
	}

	seed := fmt.Sprintf("%s:%d", app.ID, round)

	updated := make([]*evaluation.Evaluation, len(evals))
	revised := make([]bool, len(evals))

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range evals {
		g.Go(func() error {
			updated[i], revised[i] = d.deliberateOne(gctx, e, evals, seed, round)
			return nil
		})
	}
	_ = g.Wait()

	var revisions int
	for _, r := range revised {
		if r {
			revisions++
		}
	}

	return updated, revisions
}

func (d *Deliberator) deliberateOne(ctx context.Context, e *evaluation.Evaluation, all []*evaluation.Evaluation, seed string, round int) (*evaluation.Evaluation, bool) {
	ctx, span := telemetry.StartEvaluationSpan(ctx, e.AgentID, round)
	defer span.End()

	ag := d.roster.ByID(e.AgentID)
	if ag == nil {
		return e, false
	}

	peers := formatEvaluations(all, true, e.AgentID, seed)
	prompt := buildDeliberationPrompt(e, peers, round)

	var out revisionResponse
	if err := structuredWithRetry(ctx, d.llm, d.metrics, ag.Model, systemDeliberator, prompt, 0.4, &out); err != nil {
		slog.Warn("deliberation call failed, keeping previous position",
			"agent_id", e.AgentID,
			"round", round,
			"error", err,
		)
		return e, false
	}

	if !out.Revised {
		return e, false
	}

	newRec := evaluation.Recommendation(out.Recommendation)
	if !newRec.Valid() {
		newRec = e.Recommendation
	}

	// A revision only counts when the score moved by at least the position
	// change threshold or the recommendation flipped. Smaller movement is
	// rewording, not a changed position. The delta is measured on the
	// clamped score: an out-of-range value that lands on the prior score
	// after clamping is not a moved position.
	newScore := math.Min(1, math.Max(0, out.Score))
	significant := math.Abs(newScore-e.Score) >= d.cfg.PositionChangeThreshold || newRec != e.Recommendation
	if !significant {
		return e, false
	}

	rev := evaluation.New(e.ApplicationID, e.AgentID, e.AgentName)
	rev.Score = newScore
	rev.Recommendation = newRec
	rev.Confidence = out.Confidence
	rev.Rationale = e.Rationale
	rev.Strengths = e.Strengths
	rev.Concerns = e.Concerns
	rev.Questions = e.Questions
	rev.ObservationsUsed = e.ObservationsUsed
	rev.Round = round
	rev.Revised = true
	rev.OriginalScore = e.Score
	rev.RevisionRationale = out.RevisionRationale
	rev.Clamp()

	return rev, true
}
