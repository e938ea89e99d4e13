package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/domain/team"
	"github.com/opencouncil/councild/internal/port/database"
)

const systemEvaluator = "You are an expert grant evaluator. Respond only with valid JSON."

// evalResponse is the JSON shape agents return for an initial evaluation.
type evalResponse struct {
	Score          float64  `json:"score"`
	Recommendation string   `json:"recommendation"`
	Confidence     float64  `json:"confidence"`
	Rationale      string   `json:"rationale"`
	Strengths      []string `json:"strengths"`
	Concerns       []string `json:"concerns"`
	Questions      []string `json:"questions"`
}

// Dispatcher fans an application out to every configured agent for initial
// evaluation. One agent's failure never aborts the others: after one retry a
// failed agent is recorded as a degraded evaluation.
type Dispatcher struct {
	llm      *litellm.Client
	store    database.Store
	roster   agent.Roster
	learning config.Learning
	metrics  *telemetry.Metrics
}

// NewDispatcher creates a Dispatcher over the given roster.
func NewDispatcher(llm *litellm.Client, store database.Store, roster agent.Roster, learning config.Learning, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		llm:      llm,
		store:    store,
		roster:   roster,
		learning: learning,
		metrics:  metrics,
	}
}

// Evaluate runs the round-0 evaluation: every agent concurrently, each with
// its retrieved observations and the shared team context. Always returns one
// evaluation per agent.
func (d *Dispatcher) Evaluate(ctx context.Context, app *application.Application, teamCtx *team.Context, similar []SimilarApplication) ([]*evaluation.Evaluation, error) {
	if app == nil {
		return nil, fmt.Errorf("evaluate: nil application")
	}

	evals := make([]*evaluation.Evaluation, len(d.roster))

	g, gctx := errgroup.WithContext(ctx)
	for i := range d.roster {
		ag := &d.roster[i]
		g.Go(func() error {
			evals[i] = d.evaluateOne(gctx, ag, app, teamCtx, similar)
			return nil
		})
	}
	_ = g.Wait()

	return evals, nil
}

func (d *Dispatcher) evaluateOne(ctx context.Context, ag *agent.Agent, app *application.Application, teamCtx *team.Context, similar []SimilarApplication) *evaluation.Evaluation {
	ctx, span := telemetry.StartEvaluationSpan(ctx, ag.ID, 0)
	defer span.End()

	if d.metrics != nil {
		d.metrics.EvaluationsStarted.Add(ctx, 1)
	}

	observations := d.retrieveObservations(ctx, ag, app)
	prompt := buildEvaluationPrompt(ag, app, observations, teamCtx, similar)

	req := litellm.ChatCompletionRequest{
		Model: ag.Model,
		Messages: []litellm.ChatMessage{
			{Role: "system", Content: systemEvaluator},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.5,
	}

	// A response that parses but fails validation counts as a failed
	// attempt, same as a gateway error.
	var out evalResponse
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		start := time.Now()
		err = d.llm.Structured(ctx, req, &out)
		if d.metrics != nil {
			d.metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err == nil {
			if rec := evaluation.Recommendation(out.Recommendation); !rec.Valid() {
				err = fmt.Errorf("agent %s: invalid recommendation %q", ag.ID, out.Recommendation)
				continue
			}
			break
		}
		if !litellm.Retryable(err) {
			break
		}
	}
	if err != nil {
		slog.Warn("agent evaluation degraded",
			"agent_id", ag.ID,
			"application_id", app.ID,
			"error", err,
		)
		if d.metrics != nil {
			d.metrics.EvaluationsDegraded.Add(ctx, 1)
		}
		return evaluation.Degraded(app.ID, ag.ID, ag.Name, err.Error())
	}

	e := evaluation.New(app.ID, ag.ID, ag.Name)
	e.Score = out.Score
	e.Recommendation = evaluation.Recommendation(out.Recommendation)
	e.Confidence = out.Confidence
	e.Rationale = out.Rationale
	e.Strengths = out.Strengths
	e.Concerns = out.Concerns
	e.Questions = out.Questions
	e.Clamp()

	for _, o := range observations {
		e.ObservationsUsed = append(e.ObservationsUsed, o.ID)
		o.MarkUsed()
		if uerr := d.store.UpdateObservation(ctx, o); uerr != nil {
			slog.Warn("failed to record observation use", "observation_id", o.ID, "error", uerr)
		}
	}

	return e
}

// structuredWithRetry issues one JSON-mode completion, retrying once on a
// retryable gateway failure or malformed output.
func structuredWithRetry(ctx context.Context, llm *litellm.Client, metrics *telemetry.Metrics, model, system, prompt string, temperature float64, out any) error {
	req := litellm.ChatCompletionRequest{
		Model: model,
		Messages: []litellm.ChatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
	}

	call := func() error {
		start := time.Now()
		err := llm.Structured(ctx, req, out)
		if metrics != nil {
			metrics.GatewayDuration.Record(ctx, time.Since(start).Seconds())
		}
		return err
	}

	err := call()
	if err == nil || !litellm.Retryable(err) {
		return err
	}

	slog.Debug("retrying gateway call", "model", model, "error", err)
	return call()
}

// retrieveObservations loads the active observations matching this agent's
// tag set for this application. Retrieval failure is not fatal: the agent
// evaluates without learned patterns.
func (d *Dispatcher) retrieveObservations(ctx context.Context, ag *agent.Agent, app *application.Application) []*observation.Observation {
	if d.store == nil {
		return nil
	}

	obs, err := d.store.ListObservations(ctx, database.ObservationFilter{
		AgentID: ag.ID,
		Status:  observation.StatusActive,
		Tags:    agentTags(ag, app),
		Limit:   d.learning.MaxObservationsInPrompt,
	})
	if err != nil {
		slog.Warn("observation retrieval failed", "agent_id", ag.ID, "error", err)
		return nil
	}

	out := make([]*observation.Observation, len(obs))
	for i := range obs {
		out[i] = &obs[i]
	}
	return out
}
