package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/port/database"
)

const systemExtractor = "You are an expert at extracting structured data from grant applications."

// parsedApplication is the JSON shape the extraction call returns.
type parsedApplication struct {
	Title             string                   `json:"title"`
	Summary           string                   `json:"summary"`
	TeamName          string                   `json:"team_name"`
	TeamMembers       []application.TeamMember `json:"team_members"`
	ProblemStatement  string                   `json:"problem_statement"`
	ProposedSolution  string                   `json:"proposed_solution"`
	TechnicalApproach string                   `json:"technical_approach"`
	PriorWork         string                   `json:"prior_work"`
	FundingRequested  float64                  `json:"funding_requested"`
	FundingCurrency   string                   `json:"funding_currency"`
	BudgetBreakdown   []application.BudgetItem `json:"budget_breakdown"`
	Milestones        []application.Milestone  `json:"milestones"`
	Website           string                   `json:"website"`
	GitHub            string                   `json:"github"`
	Demo              string                   `json:"demo"`
}

// IntakeService turns submissions, structured or freeform, into persisted
// pending applications.
type IntakeService struct {
	llm     *litellm.Client
	store   database.Store
	cfg     config.Council
	metrics *telemetry.Metrics
}

// NewIntakeService creates an IntakeService.
func NewIntakeService(llm *litellm.Client, store database.Store, cfg config.Council, metrics *telemetry.Metrics) *IntakeService {
	return &IntakeService{llm: llm, store: store, cfg: cfg, metrics: metrics}
}

// CreateStructured persists a pre-structured submission.
func (s *IntakeService) CreateStructured(ctx context.Context, req *application.CreateRequest) (*application.Application, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid submission: %w", err)
	}

	app := application.New(req.Title, req.TeamName)
	app.Summary = req.Summary
	app.Description = req.Description
	app.TeamMembers = req.TeamMembers
	app.ProblemStatement = req.ProblemStatement
	app.ProposedSolution = req.ProposedSolution
	app.TechnicalApproach = req.TechnicalApproach
	app.PriorWork = req.PriorWork
	app.FundingRequested = req.FundingRequested
	if req.FundingCurrency != "" {
		app.FundingCurrency = req.FundingCurrency
	}
	app.BudgetBreakdown = req.BudgetBreakdown
	app.Milestones = req.Milestones
	app.ProgramID = req.ProgramID
	app.RoundID = req.RoundID
	app.Website = req.Website
	app.GitHub = req.GitHub
	app.Demo = req.Demo
	app.RawSubmission = req.RawSubmission

	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}
	return app, nil
}

// CreateFreeform extracts a structured application from raw submission text
// via the gateway, falling back to heuristic parsing when extraction fails.
// The sink receives the parsing stage boundaries when a caller is streaming.
func (s *IntakeService) CreateFreeform(ctx context.Context, rawText string, metadata map[string]any, sink EventSink) (*application.Application, error) {
	rawText = strings.TrimSpace(rawText)
	if rawText == "" {
		return nil, fmt.Errorf("freeform submission is empty")
	}

	if sink != nil {
		sink(Event{Kind: "stage", Stage: StageParsing, Status: "started"})
	}

	app := s.extract(ctx, rawText)
	if app == nil {
		slog.Warn("freeform extraction failed, using heuristic parse")
		app = basicParse(rawText)
	}

	app.RawSubmission = map[string]any{"text": rawText, "metadata": metadata}
	if metadata != nil {
		if v, ok := metadata["program_id"].(string); ok {
			app.ProgramID = v
		}
		if v, ok := metadata["round_id"].(string); ok {
			app.RoundID = v
		}
	}

	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("create application: %w", err)
	}

	if sink != nil {
		sink(Event{Kind: "stage", Stage: StageParsing, Status: "complete", Payload: map[string]any{
			"application_id": app.ID,
			"title":          app.Title,
		}})
	}

	return app, nil
}

func (s *IntakeService) extract(ctx context.Context, rawText string) *application.Application {
	prompt := fmt.Sprintf(`Extract structured information from this grant application.

APPLICATION TEXT:
%s

Extract the following information. If a field is not mentioned, use null or empty values.
Be thorough - extract all team members, budget items, and milestones mentioned.

Respond with JSON:
{
    "title": "string - project title",
    "summary": "string - one paragraph summary",
    "team_name": "string - name of the team/organization",
    "team_members": [{"name": "...", "role": "...", "bio": "...", "github": "..."}],
    "problem_statement": "string - what problem does this solve",
    "proposed_solution": "string - how they plan to solve it",
    "technical_approach": "string - technical details and architecture",
    "prior_work": "string - relevant experience and past work",
    "funding_requested": 0,
    "funding_currency": "USD",
    "budget_breakdown": [{"category": "...", "description": "...", "amount": 0, "justification": "..."}],
    "milestones": [{"title": "...", "description": "...", "deliverables": ["..."], "timeline": "...", "funding_amount": 0}],
    "website": null,
    "github": null,
    "demo": null
}`, sanitizePromptInput(rawText))

	var out parsedApplication
	if err := structuredWithRetry(ctx, s.llm, s.metrics, s.cfg.ParserModel, systemExtractor, prompt, 0.3, &out); err != nil {
		slog.Warn("application extraction call failed", "error", err)
		return nil
	}

	if out.Title == "" {
		out.Title = "Untitled Application"
	}
	if out.TeamName == "" {
		out.TeamName = "Unknown Team"
	}

	app := application.New(out.Title, out.TeamName)
	app.Summary = out.Summary
	app.Description = truncateRunes(rawText, 2000)
	app.TeamMembers = out.TeamMembers
	app.ProblemStatement = out.ProblemStatement
	app.ProposedSolution = out.ProposedSolution
	app.TechnicalApproach = out.TechnicalApproach
	app.PriorWork = out.PriorWork
	app.FundingRequested = out.FundingRequested
	if out.FundingCurrency != "" {
		app.FundingCurrency = out.FundingCurrency
	}
	app.BudgetBreakdown = out.BudgetBreakdown
	app.Milestones = out.Milestones
	app.Website = out.Website
	app.GitHub = out.GitHub
	app.Demo = out.Demo
	return app
}

var fundingPattern = regexp.MustCompile(`(?i)\$?([\d,]+(?:\.\d{2})?)\s*(?:USD|dollars?)?`)

// basicParse is the no-gateway fallback: title from the first line, funding
// from the first dollar-looking amount in the text.
func basicParse(rawText string) *application.Application {
	lines := strings.Split(strings.TrimSpace(rawText), "\n")
	title := "Untitled"
	if len(lines) > 0 && strings.TrimSpace(lines[0]) != "" {
		title = truncateRunes(strings.TrimSpace(lines[0]), 100)
	}

	var funding float64
	if m := fundingPattern.FindStringSubmatch(rawText); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			funding = v
		}
	}

	app := application.New(title, "Unknown Team")
	app.Description = rawText
	app.FundingRequested = funding
	return app
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
