// Package service implements the council pipeline: parallel agent
// evaluation, bounded deliberation, aggregation, routing, synthesis, and the
// learning loop that feeds human overrides and grant outcomes back into
// future evaluations.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/adapter/ws"
	"github.com/opencouncil/councild/internal/domain"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/decision"
	"github.com/opencouncil/councild/internal/domain/evaluation"
	"github.com/opencouncil/councild/internal/port/broadcast"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/port/messagequeue"
)

// Pipeline stage names, in execution order. Deliberation stages are
// numbered from 1.
const (
	StageParsing           = "parsing"
	StageInitialEvaluation = "initial_evaluation"
	StageAggregation       = "aggregation"
	StageSynthesis         = "synthesis"
)

// StageDeliberation names the stage for one deliberation round.
func StageDeliberation(round int) string {
	return fmt.Sprintf("deliberation_round_%d", round)
}

// Event is one entry in the ordered per-run event stream consumed by the
// API layer. Stage events come in started/complete pairs; the stream ends
// with exactly one complete or error event.
type Event struct {
	Kind    string `json:"kind"` // stage | complete | error
	Stage   string `json:"stage,omitempty"`
	Status  string `json:"status,omitempty"` // started | complete
	Round   int    `json:"round,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// EventSink receives pipeline events in order. Only the pipeline driver
// emits stage boundaries, so the sequence is deterministic even though the
// work inside a stage fans out.
type EventSink func(Event)

// CompletePayload is carried by the terminal complete event.
type CompletePayload struct {
	ApplicationID  string  `json:"application_id"`
	DecisionID     string  `json:"decision_id"`
	Recommendation string  `json:"recommendation"`
	AverageScore   float64 `json:"average_score"`
	Synthesis      string  `json:"synthesis"`
	Feedback       string  `json:"feedback"`
	AutoExecuted   bool    `json:"auto_executed"`
}

// Council drives the full evaluation pipeline for one application at a time
// and records human decisions on routed applications.
type Council struct {
	store       database.Store
	teams       *TeamService
	dispatcher  *Dispatcher
	deliberator *Deliberator
	router      *Router
	synth       *Synthesizer
	queue       messagequeue.Queue
	hub         broadcast.Broadcaster
	metrics     *telemetry.Metrics
}

// NewCouncil wires the pipeline stages together.
func NewCouncil(
	store database.Store,
	teams *TeamService,
	dispatcher *Dispatcher,
	deliberator *Deliberator,
	router *Router,
	synth *Synthesizer,
	queue messagequeue.Queue,
	hub broadcast.Broadcaster,
	metrics *telemetry.Metrics,
) *Council {
	return &Council{
		store:       store,
		teams:       teams,
		dispatcher:  dispatcher,
		deliberator: deliberator,
		router:      router,
		synth:       synth,
		queue:       queue,
		hub:         hub,
		metrics:     metrics,
	}
}

// Run evaluates one application end to end and persists the resulting
// decision. The sink may be nil when no caller is streaming.
func (c *Council) Run(ctx context.Context, applicationID string, sink EventSink) (*decision.Decision, error) {
	ctx, span := telemetry.StartCouncilSpan(ctx, applicationID)
	defer span.End()

	start := time.Now()
	d, err := c.run(ctx, applicationID, sink)
	if c.metrics != nil {
		c.metrics.CouncilDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		c.emit(sink, Event{Kind: "error", Payload: err.Error()})
		return nil, err
	}

	c.emit(sink, Event{Kind: "complete", Payload: CompletePayload{
		ApplicationID:  d.ApplicationID,
		DecisionID:     d.ID,
		Recommendation: string(d.Recommendation),
		AverageScore:   d.AverageScore,
		Synthesis:      d.Synthesis,
		Feedback:       d.FeedbackForApplicant,
		AutoExecuted:   d.AutoExecuted,
	}})

	return d, nil
}

func (c *Council) run(ctx context.Context, applicationID string, sink EventSink) (*decision.Decision, error) {
	app, err := c.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}

	if err := c.transition(ctx, app, application.StatusEvaluating); err != nil {
		return nil, err
	}

	teamCtx, err := c.teams.Resolve(ctx, app)
	if err != nil {
		slog.Warn("team resolution failed, evaluating without history",
			"application_id", app.ID, "error", err)
		teamCtx = nil
	} else if err := c.store.UpdateApplication(ctx, app); err != nil {
		slog.Warn("failed to persist team link", "application_id", app.ID, "error", err)
	}

	// Stage 1: initial fan-out evaluation.
	c.stage(ctx, sink, app.ID, StageInitialEvaluation, 0, "started", nil)
	evals, err := c.dispatcher.Evaluate(ctx, app, teamCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("initial evaluation: %w", err)
	}
	c.stage(ctx, sink, app.ID, StageInitialEvaluation, 0, "complete", evaluationSummaries(evals))

	// Stage 2: bounded deliberation with early convergence.
	if err := c.transition(ctx, app, application.StatusDeliberating); err != nil {
		return nil, err
	}

	var (
		roundsRun      int
		convergedEarly bool
	)
	for round := 1; round <= c.deliberator.MaxRounds(); round++ {
		roundsRun = round
		stage := StageDeliberation(round)
		c.stage(ctx, sink, app.ID, stage, round, "started", nil)

		var revisions int
		evals, revisions = c.deliberator.RunRound(ctx, app, evals, round)

		c.stage(ctx, sink, app.ID, stage, round, "complete", map[string]int{"revisions": revisions})

		if revisions == 0 {
			if round < c.deliberator.MaxRounds() {
				convergedEarly = true
			}
			break
		}
	}

	// Stage 3: aggregate and route.
	c.stage(ctx, sink, app.ID, StageAggregation, 0, "started", nil)
	agg := AggregateEvaluations(evals)
	route := c.router.Decide(app, agg)
	c.stage(ctx, sink, app.ID, StageAggregation, 0, "complete", map[string]any{
		"average_score":      agg.AverageScore,
		"average_confidence": agg.AverageConfidence,
		"unanimous":          agg.Unanimous,
		"recommendation":     route.Recommendation,
		"auto_execute":       route.AutoExecute,
	})
	if c.metrics != nil {
		c.metrics.DecisionsRouted.Add(ctx, 1)
	}

	// Stage 4: synthesize the narrative. Never fatal.
	c.stage(ctx, sink, app.ID, StageSynthesis, 0, "started", nil)
	synthesis, feedback := c.synth.Synthesize(ctx, app, evals, agg, route)
	c.stage(ctx, sink, app.ID, StageSynthesis, 0, "complete", nil)

	d := decision.New(app.ID)
	d.AverageScore = agg.AverageScore
	d.AverageConfidence = agg.AverageConfidence
	d.ScoreVariance = agg.ScoreVariance
	d.Recommendation = route.Recommendation
	d.Evaluations = dereference(evals)
	d.AutoExecuted = route.AutoExecute
	d.RequiresHumanReview = !route.AutoExecute
	d.ReviewReasons = route.ReviewReasons
	d.Synthesis = synthesis
	d.FeedbackForApplicant = feedback
	d.ConvergedEarly = convergedEarly
	d.RoundsRun = roundsRun

	next := application.StatusNeedsReview
	if route.AutoExecute {
		now := time.Now().UTC()
		d.DecidedAt = &now
		if route.Recommendation == evaluation.RecommendApprove {
			next = application.StatusAutoApproved
		} else {
			next = application.StatusAutoRejected
		}
	}
	if err := c.transition(ctx, app, next); err != nil {
		return nil, err
	}

	if err := c.store.SaveDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("save decision for application %s: %w", app.ID, err)
	}

	c.hub.BroadcastEvent(ctx, ws.EventDecisionReady, ws.DecisionReadyEvent{
		ApplicationID:  app.ID,
		DecisionID:     d.ID,
		Recommendation: string(d.Recommendation),
		AverageScore:   d.AverageScore,
		AutoExecuted:   d.AutoExecuted,
	})

	slog.Info("council decision recorded",
		"application_id", app.ID,
		"decision_id", d.ID,
		"recommendation", d.Recommendation,
		"auto_executed", d.AutoExecuted,
		"rounds_run", d.RoundsRun,
		"converged_early", d.ConvergedEarly,
	)

	return d, nil
}

// RecordHumanDecision applies a reviewer's approve/reject to a routed
// application. An override of the council's recommendation is published for
// the learning loop; reflection runs off the request path.
func (c *Council) RecordHumanDecision(ctx context.Context, applicationID, humanDecision, rationale, reviewer string) (*decision.Decision, error) {
	if humanDecision != "approve" && humanDecision != "reject" {
		return nil, fmt.Errorf("human decision must be approve or reject, got %q", humanDecision)
	}

	d, err := c.store.GetDecisionByApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load decision for application %s: %w", applicationID, err)
	}

	app, err := c.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("load application %s: %w", applicationID, err)
	}

	now := time.Now().UTC()
	d.Human = &decision.Human{
		Decision:  humanDecision,
		Rationale: rationale,
		Reviewer:  reviewer,
		DecidedAt: now,
	}
	d.DecidedAt = &now

	next := application.StatusRejected
	if humanDecision == "approve" {
		next = application.StatusApproved
	}
	if err := c.transition(ctx, app, next); err != nil {
		return nil, err
	}

	if err := c.store.SaveDecision(ctx, d); err != nil {
		return nil, fmt.Errorf("save decision %s: %w", d.ID, err)
	}

	if d.IsOverride(humanDecision) {
		payload, err := json.Marshal(messagequeue.OverridePayload{
			ApplicationID: applicationID,
			DecisionID:    d.ID,
			HumanDecision: humanDecision,
			Rationale:     rationale,
			Reviewer:      reviewer,
			DecidedAt:     now,
		})
		if err == nil {
			if perr := c.queue.Publish(ctx, messagequeue.SubjectOverrideRecorded, payload); perr != nil {
				slog.Error("failed to publish override event", "decision_id", d.ID, "error", perr)
			}
		}
	}

	return d, nil
}

// ReportOutcome records a funded project's real-world result and publishes
// it for the learning loop.
func (c *Council) ReportOutcome(ctx context.Context, applicationID string, success bool, completed, total int, notes string) error {
	app, err := c.store.GetApplication(ctx, applicationID)
	if err != nil {
		return fmt.Errorf("load application %s: %w", applicationID, err)
	}

	if err := c.teams.RecordOutcome(ctx, app, success); err != nil {
		slog.Warn("failed to update team history from outcome", "application_id", applicationID, "error", err)
	}

	payload, err := json.Marshal(messagequeue.OutcomePayload{
		ApplicationID:       applicationID,
		Success:             success,
		MilestonesCompleted: completed,
		MilestonesTotal:     total,
		Notes:               notes,
		ReportedAt:          time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal outcome payload: %w", err)
	}
	if err := c.queue.Publish(ctx, messagequeue.SubjectOutcomeReported, payload); err != nil {
		return fmt.Errorf("publish outcome for application %s: %w", applicationID, err)
	}
	return nil
}

func (c *Council) transition(ctx context.Context, app *application.Application, to application.Status) error {
	if err := app.Transition(to); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, err.Error())
	}
	if err := c.store.UpdateApplicationStatus(ctx, app.ID, to); err != nil {
		return fmt.Errorf("persist status %s for application %s: %w", to, app.ID, err)
	}
	c.hub.BroadcastEvent(ctx, ws.EventApplicationStatus, ws.ApplicationStatusEvent{
		ApplicationID: app.ID,
		Status:        string(to),
	})
	return nil
}

func (c *Council) stage(ctx context.Context, sink EventSink, applicationID, stage string, round int, state string, payload any) {
	c.emit(sink, Event{Kind: "stage", Stage: stage, Status: state, Round: round, Payload: payload})
	c.hub.BroadcastEvent(ctx, ws.EventCouncilStage, ws.CouncilStageEvent{
		ApplicationID: applicationID,
		Stage:         stage,
		State:         state,
		Round:         round,
	})
}

func (c *Council) emit(sink EventSink, e Event) {
	if sink != nil {
		sink(e)
	}
}

func dereference(evals []*evaluation.Evaluation) []evaluation.Evaluation {
	out := make([]evaluation.Evaluation, 0, len(evals))
	for _, e := range evals {
		if e != nil {
			out = append(out, *e)
		}
	}
	return out
}

// evaluationSummaries is the stage payload after initial evaluation: enough
// for a progress UI without the full rationale text.
func evaluationSummaries(evals []*evaluation.Evaluation) []map[string]any {
	out := make([]map[string]any, 0, len(evals))
	for _, e := range evals {
		if e == nil {
			continue
		}
		out = append(out, map[string]any{
			"agent_id":       e.AgentID,
			"score":          e.Score,
			"recommendation": e.Recommendation,
			"confidence":     e.Confidence,
		})
	}
	return out
}
