package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
)

const systemSynthesizer = "You are synthesizing a grants council decision. Be thorough but concise."

// synthesisResponse is the JSON shape the synthesis call returns.
type synthesisResponse struct {
	Synthesis         string `json:"synthesis"`
	ApplicantFeedback string `json:"applicant_feedback"`
}

// Synthesizer produces the decision narrative: an internal summary for
// program managers and constructive feedback for the applicant. Failure is
// non-fatal; a templated fallback keeps the pipeline producing a decision.
type Synthesizer struct {
	llm     *litellm.Client
	cfg     config.Council
	metrics *telemetry.Metrics
}

// NewSynthesizer creates a Synthesizer using the configured synthesis model.
func NewSynthesizer(llm *litellm.Client, cfg config.Council, metrics *telemetry.Metrics) *Synthesizer {
	return &Synthesizer{llm: llm, cfg: cfg, metrics: metrics}
}

// Synthesize returns (synthesis, applicant feedback).
func (s *Synthesizer) Synthesize(ctx context.Context, app *application.Application, evals []*evaluation.Evaluation, agg Aggregate, route Route) (string, string) {
	ctx, span := telemetry.StartSynthesisSpan(ctx, app.ID)
	defer span.End()

	prompt := buildSynthesisPrompt(app, evals, agg, route)

	var out synthesisResponse
	err := structuredWithRetry(ctx, s.llm, s.metrics, s.cfg.SynthesisModel, systemSynthesizer, prompt, 0.5, &out)
	if err == nil && out.Synthesis != "" {
		if out.ApplicantFeedback == "" {
			out.ApplicantFeedback = fallbackFeedback(route)
		}
		return out.Synthesis, out.ApplicantFeedback
	}

	slog.Warn("synthesis failed, using templated fallback", "application_id", app.ID, "error", err)
	return fallbackSynthesis(agg, route), fallbackFeedback(route)
}

func buildSynthesisPrompt(app *application.Application, evals []*evaluation.Evaluation, agg Aggregate, route Route) string {
	unanimous := "No"
	if agg.Unanimous {
		unanimous = "Yes"
	}

	var b strings.Builder
	b.WriteString("# Council Decision Synthesis\n\n")
	b.WriteString("## Application Summary\n")
	fmt.Fprintf(&b, "**Title:** %s\n", sanitizePromptInput(app.Title))
	fmt.Fprintf(&b, "**Team:** %s\n", sanitizePromptInput(app.TeamName))
	fmt.Fprintf(&b, "**Funding Requested:** %s %s\n\n", formatMoney(app.FundingRequested), app.FundingCurrency)
	b.WriteString("## Aggregated Results\n")
	fmt.Fprintf(&b, "- Average Score: %.2f\n", agg.AverageScore)
	fmt.Fprintf(&b, "- Average Confidence: %.0f%%\n", agg.AverageConfidence*100)
	fmt.Fprintf(&b, "- Recommendation: %s\n", strings.ToUpper(string(route.Recommendation)))
	fmt.Fprintf(&b, "- Unanimous: %s\n", unanimous)
	if len(route.ReviewReasons) > 0 {
		b.WriteString("- Review Reasons:\n")
		for _, reason := range route.ReviewReasons {
			fmt.Fprintf(&b, "  - %s\n", reason)
		}
	}
	fmt.Fprintf(&b, "\n## Individual Evaluations\n%s\n", formatEvaluations(evals, false, "", ""))

	b.WriteString(`
---

Generate two outputs:

1. **SYNTHESIS**: A 2-3 paragraph summary of the council's assessment for program managers. Include:
   - Key points of agreement
   - Notable concerns raised
   - Any significant disagreements
   - Overall rationale for the recommendation

2. **APPLICANT_FEEDBACK**: Constructive feedback for the applicant (whether approved or rejected). Include:
   - Specific strengths identified
   - Areas for improvement
   - Questions that would strengthen future applications
   - If rejected, what would need to change for reconsideration

Respond with JSON:
{
    "synthesis": "...",
    "applicant_feedback": "..."
}`)

	return b.String()
}

func fallbackSynthesis(agg Aggregate, route Route) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The council evaluated this application with an average score of %.2f and average confidence of %.0f%%. Recommendation: %s.",
		agg.AverageScore, agg.AverageConfidence*100, route.Recommendation)
	if len(route.ReviewReasons) > 0 {
		fmt.Fprintf(&b, " Routed to human review: %s.", strings.Join(route.ReviewReasons, "; "))
	}
	return b.String()
}

func fallbackFeedback(route Route) string {
	switch route.Recommendation {
	case evaluation.RecommendApprove:
		return "Thank you for your application. The council recommends approval. Please contact the program for next steps."
	case evaluation.RecommendReject:
		return "Thank you for your application. The council did not recommend funding at this time. Please contact the program for detailed feedback."
	default:
		return "Thank you for your application. It has been routed for human review. Please contact the program for detailed feedback."
	}
}
