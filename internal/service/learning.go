package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/evaluation"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/port/messagequeue"
)

const (
	systemOverrideReflection = "You are reflecting on a decision to improve future evaluations."
	systemOutcomeReflection  = "You are learning from grant outcomes to improve future evaluations."
	systemBootstrap          = "You are developing expertise from historical data."
)

// observationResponse is the JSON shape reflection calls return.
type observationResponse struct {
	Pattern    string   `json:"pattern"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// bootstrapResponse is the JSON shape the bootstrap call returns.
type bootstrapResponse struct {
	Observations []struct {
		Pattern         string   `json:"pattern"`
		EvidenceIndices []int    `json:"evidence_indices"`
		Tags            []string `json:"tags"`
		Confidence      float64  `json:"confidence"`
	} `json:"observations"`
}

// HistoricalApplication is one past application with a known outcome, used
// to bootstrap agent expertise.
type HistoricalApplication struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	TeamName         string  `json:"team_name"`
	FundingRequested float64 `json:"funding_requested"`
	Success          bool    `json:"success"`
	OutcomeNotes     string  `json:"outcome_notes"`
}

// LearningService turns override and outcome signals into draft
// observations. It consumes the queue so reflection never blocks the
// request path; every generated observation starts as a draft and stays
// invisible to retrieval until a human promotes it.
type LearningService struct {
	llm     *litellm.Client
	store   database.Store
	queue   messagequeue.Queue
	roster  agent.Roster
	cfg     config.Learning
	metrics *telemetry.Metrics
}

// NewLearningService creates a LearningService.
func NewLearningService(llm *litellm.Client, store database.Store, queue messagequeue.Queue, roster agent.Roster, cfg config.Learning, metrics *telemetry.Metrics) *LearningService {
	return &LearningService{
		llm:     llm,
		store:   store,
		queue:   queue,
		roster:  roster,
		cfg:     cfg,
		metrics: metrics,
	}
}

// Start subscribes to the override and outcome subjects. The returned
// function cancels both subscriptions.
func (s *LearningService) Start(ctx context.Context) (func(), error) {
	cancelOverride, err := s.queue.Subscribe(ctx, messagequeue.SubjectOverrideRecorded, s.handleOverride)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectOverrideRecorded, err)
	}

	cancelOutcome, err := s.queue.Subscribe(ctx, messagequeue.SubjectOutcomeReported, s.handleOutcome)
	if err != nil {
		cancelOverride()
		return nil, fmt.Errorf("subscribe %s: %w", messagequeue.SubjectOutcomeReported, err)
	}

	slog.Info("learning loop subscribed",
		"subjects", []string{messagequeue.SubjectOverrideRecorded, messagequeue.SubjectOutcomeReported})

	return func() {
		cancelOverride()
		cancelOutcome()
	}, nil
}

// handleOverride asks each agent whose recommendation the human contradicted
// to reflect on what it missed.
func (s *LearningService) handleOverride(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.OverridePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal override payload: %w", err)
	}

	d, err := s.store.GetDecisionByApplication(ctx, p.ApplicationID)
	if err != nil {
		return fmt.Errorf("load decision for application %s: %w", p.ApplicationID, err)
	}
	app, err := s.store.GetApplication(ctx, p.ApplicationID)
	if err != nil {
		return fmt.Errorf("load application %s: %w", p.ApplicationID, err)
	}

	var created int
	for i := range d.Evaluations {
		e := &d.Evaluations[i]

		agreed := (e.Recommendation == evaluation.RecommendApprove && p.HumanDecision == "approve") ||
			(e.Recommendation == evaluation.RecommendReject && p.HumanDecision == "reject")
		if agreed {
			continue
		}

		ag := s.roster.ByID(e.AgentID)
		if ag == nil {
			continue
		}

		prompt := buildOverrideReflectionPrompt(ag, e, p.HumanDecision, p.Rationale, app.Title, app.TeamName, app.FundingRequested)

		var out observationResponse
		if err := structuredWithRetry(ctx, s.llm, s.metrics, ag.Model, systemOverrideReflection, prompt, 0.5, &out); err != nil {
			slog.Warn("override reflection failed", "agent_id", ag.ID, "application_id", app.ID, "error", err)
			continue
		}
		if out.Pattern == "" {
			continue
		}

		o := observation.NewDraft(ag.ID, out.Pattern, out.Tags, []string{app.ID}, clampConfidence(out.Confidence))
		if err := s.store.CreateObservation(ctx, o); err != nil {
			slog.Error("failed to save draft observation", "agent_id", ag.ID, "error", err)
			continue
		}
		created++
	}

	slog.Info("override reflection complete",
		"application_id", p.ApplicationID, "draft_observations", created)
	return nil
}

// handleOutcome asks every agent whether the real-world result corroborates
// or contradicts its original evaluation.
func (s *LearningService) handleOutcome(ctx context.Context, _ string, data []byte) error {
	var p messagequeue.OutcomePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("unmarshal outcome payload: %w", err)
	}

	d, err := s.store.GetDecisionByApplication(ctx, p.ApplicationID)
	if err != nil {
		return fmt.Errorf("load decision for application %s: %w", p.ApplicationID, err)
	}
	app, err := s.store.GetApplication(ctx, p.ApplicationID)
	if err != nil {
		return fmt.Errorf("load application %s: %w", p.ApplicationID, err)
	}

	var created int
	for i := range d.Evaluations {
		e := &d.Evaluations[i]

		ag := s.roster.ByID(e.AgentID)
		if ag == nil {
			continue
		}

		predictedSuccess := e.Recommendation == evaluation.RecommendApprove
		correct := predictedSuccess == p.Success

		prompt := buildOutcomeReflectionPrompt(ag, e, p.Success, p.Notes, correct, app.Title, app.TeamName, app.FundingRequested)

		var out observationResponse
		if err := structuredWithRetry(ctx, s.llm, s.metrics, ag.Model, systemOutcomeReflection, prompt, 0.5, &out); err != nil {
			slog.Warn("outcome reflection failed", "agent_id", ag.ID, "application_id", app.ID, "error", err)
			continue
		}
		if out.Pattern == "" {
			continue
		}

		o := observation.NewDraft(ag.ID, out.Pattern, out.Tags, []string{app.ID}, clampConfidence(out.Confidence))
		if err := s.store.CreateObservation(ctx, o); err != nil {
			slog.Error("failed to save draft observation", "agent_id", ag.ID, "error", err)
			continue
		}
		created++
	}

	slog.Info("outcome reflection complete",
		"application_id", p.ApplicationID, "success", p.Success, "draft_observations", created)
	return nil
}

// Bootstrap generates draft observations for one agent from a batch of
// historical applications with known outcomes. Used to cold-start a council.
func (s *LearningService) Bootstrap(ctx context.Context, agentID string, history []HistoricalApplication) ([]*observation.Observation, error) {
	ag := s.roster.ByID(agentID)
	if ag == nil {
		return nil, fmt.Errorf("unknown agent %q", agentID)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("bootstrap needs historical applications")
	}

	if len(history) > s.cfg.BootstrapHistoryCap {
		history = history[:s.cfg.BootstrapHistoryCap]
	}

	prompt := buildBootstrapPrompt(ag, history, s.cfg.BootstrapTarget)

	var out bootstrapResponse
	if err := structuredWithRetry(ctx, s.llm, s.metrics, ag.Model, systemBootstrap, prompt, 0.6, &out); err != nil {
		return nil, fmt.Errorf("bootstrap call for agent %s: %w", agentID, err)
	}

	var created []*observation.Observation
	for _, item := range out.Observations {
		if item.Pattern == "" {
			continue
		}

		var evidence []string
		for _, idx := range item.EvidenceIndices {
			if idx >= 1 && idx <= len(history) && history[idx-1].ID != "" {
				evidence = append(evidence, history[idx-1].ID)
			}
		}

		o := observation.NewDraft(agentID, item.Pattern, item.Tags, evidence, clampConfidence(item.Confidence))
		if err := s.store.CreateObservation(ctx, o); err != nil {
			slog.Error("failed to save bootstrap observation", "agent_id", agentID, "error", err)
			continue
		}
		created = append(created, o)
	}

	slog.Info("bootstrap complete", "agent_id", agentID, "draft_observations", len(created))
	return created, nil
}

func buildOverrideReflectionPrompt(ag *agent.Agent, e *evaluation.Evaluation, humanDecision, humanRationale, title, teamName string, funding float64) string {
	concerns := "None"
	if len(e.Concerns) > 0 {
		concerns = strings.Join(e.Concerns, ", ")
	}

	var b strings.Builder
	b.WriteString("# Learning from Override\n\n")
	fmt.Fprintf(&b, "You are the %s. Your evaluation was overridden by a human reviewer.\n\n", ag.Name)
	b.WriteString("## Your Original Evaluation\n")
	fmt.Fprintf(&b, "**Score:** %.2f\n", e.Score)
	fmt.Fprintf(&b, "**Recommendation:** %s\n", e.Recommendation)
	fmt.Fprintf(&b, "**Rationale:** %s\n", e.Rationale)
	fmt.Fprintf(&b, "**Concerns:** %s\n\n", concerns)
	b.WriteString("## Human Decision\n")
	fmt.Fprintf(&b, "**Decision:** %s\n", humanDecision)
	fmt.Fprintf(&b, "**Rationale:** %s\n\n", sanitizePromptInput(humanRationale))
	b.WriteString("## Application Summary\n")
	fmt.Fprintf(&b, "**Title:** %s\n", sanitizePromptInput(title))
	fmt.Fprintf(&b, "**Team:** %s\n", sanitizePromptInput(teamName))
	fmt.Fprintf(&b, "**Funding:** $%s\n", formatMoney(funding))
	b.WriteString(`
## Your Task

Reflect on what you might have missed or misjudged. Generate a pattern/observation that would help you make better decisions in similar future cases.

The observation should be:
- Specific and actionable
- Based on what the human reviewer saw that you missed
- Applicable to future similar applications

Respond with JSON:
{
    "pattern": "A clear statement of the pattern or insight learned",
    "tags": ["list", "of", "relevant", "tags"],
    "confidence": 0.0-1.0
}`)

	return b.String()
}

func buildOutcomeReflectionPrompt(ag *agent.Agent, e *evaluation.Evaluation, success bool, notes string, correct bool, title, teamName string, funding float64) string {
	result := "FAILURE"
	if success {
		result = "SUCCESS"
	}

	task := "You predicted incorrectly. What did you miss? What pattern should you watch for in similar future applications?"
	if correct {
		task = "You predicted correctly. What pattern in the application helped you make the right call? Articulate this so you can recognize similar patterns in the future."
	}

	var b strings.Builder
	b.WriteString("# Learning from Outcome\n\n")
	fmt.Fprintf(&b, "You are the %s. A grant you evaluated has completed, and we now know the outcome.\n\n", ag.Name)
	b.WriteString("## Your Original Evaluation\n")
	fmt.Fprintf(&b, "**Score:** %.2f\n", e.Score)
	fmt.Fprintf(&b, "**Recommendation:** %s\n", e.Recommendation)
	fmt.Fprintf(&b, "**Confidence:** %.0f%%\n", e.Confidence*100)
	fmt.Fprintf(&b, "**Rationale:** %s\n\n", e.Rationale)
	b.WriteString("## Actual Outcome\n")
	fmt.Fprintf(&b, "**Result:** %s\n", result)
	fmt.Fprintf(&b, "**Notes:** %s\n\n", sanitizePromptInput(notes))
	b.WriteString("## Application Summary\n")
	fmt.Fprintf(&b, "**Title:** %s\n", sanitizePromptInput(title))
	fmt.Fprintf(&b, "**Team:** %s\n", sanitizePromptInput(teamName))
	fmt.Fprintf(&b, "**Funding:** $%s\n", formatMoney(funding))
	fmt.Fprintf(&b, "\n## Your Task\n\n%s\n", task)
	b.WriteString(`
Respond with JSON:
{
    "pattern": "A clear statement of the pattern or insight",
    "tags": ["list", "of", "relevant", "tags"],
    "confidence": 0.0-1.0
}`)

	return b.String()
}

func buildBootstrapPrompt(ag *agent.Agent, history []HistoricalApplication, target int) string {
	var b strings.Builder
	b.WriteString("# Bootstrap Your Expertise\n\n")
	fmt.Fprintf(&b, "You are the %s. You're being initialized with historical grant data to develop your evaluation expertise.\n\n", ag.Name)
	fmt.Fprintf(&b, "## Your Role\n%s\n\n", ag.Persona)
	b.WriteString("## Historical Applications\n")
	for i, h := range history {
		outcome := "✗ Failed/Rejected"
		if h.Success {
			outcome = "✓ Approved & Delivered"
		}
		notes := h.OutcomeNotes
		if notes == "" {
			notes = "N/A"
		}
		fmt.Fprintf(&b, "\n%d. **%s**\n", i+1, sanitizePromptInput(h.Title))
		fmt.Fprintf(&b, "   - Team: %s\n", sanitizePromptInput(h.TeamName))
		fmt.Fprintf(&b, "   - Funding: $%s\n", groupDigits(h.FundingRequested))
		fmt.Fprintf(&b, "   - Outcome: %s\n", outcome)
		fmt.Fprintf(&b, "   - Notes: %s\n", sanitizePromptInput(notes))
	}
	b.WriteString("\n## Your Task\n\n")
	fmt.Fprintf(&b, "Analyze these historical applications and their outcomes. Identify %d distinct patterns that would help you evaluate future applications.\n\n", target)
	fmt.Fprintf(&b, "Focus on patterns relevant to your role:\n- %s\n\n", strings.Join(ag.Tags, ", "))
	b.WriteString(`Each pattern should be:
- Specific and actionable
- Supported by at least 2-3 examples from the history
- Useful for predicting success or failure

Respond with JSON:
{
    "observations": [
        {
            "pattern": "Clear statement of the pattern",
            "evidence_indices": [1, 5, 12],
            "tags": ["relevant", "tags"],
            "confidence": 0.0-1.0
        }
    ]
}`)

	return b.String()
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
