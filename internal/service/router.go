package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
)

// Veto is a domain-specific override applied after the base routing rules.
// A veto may only convert an auto-execute result into human review, never
// the reverse. It returns a human-readable reason when it fires.
type Veto func(app *application.Application, agg Aggregate) (reason string, vetoed bool)

// Route is the router's output: the council's verdict, whether it executes
// without a human, and why not when it doesn't.
type Route struct {
	Recommendation evaluation.Recommendation
	AutoExecute    bool
	ReviewReasons  []string
}

// Router maps aggregated statistics and application attributes to a routed
// decision. Pure: no I/O, deterministic given its inputs.
type Router struct {
	cfg    config.Council
	vetoes []Veto
}

// NewRouter creates a Router with the configured thresholds and optional
// domain vetoes.
func NewRouter(cfg config.Council, vetoes ...Veto) *Router {
	return &Router{cfg: cfg, vetoes: vetoes}
}

// Decide routes an aggregated council result. Auto-approve requires a
// unanimous approve with average score at or above the approve threshold,
// confidence at or above the minimum, and funding under the budget review
// threshold. Auto-reject mirrors it without the budget condition. Anything
// else goes to human review with every failed condition listed.
func (r *Router) Decide(app *application.Application, agg Aggregate) Route {
	var reasons []string

	rec := evaluation.RecommendNeedsReview
	switch {
	case agg.Unanimous && agg.RecommendationCounts[evaluation.RecommendApprove] > 0:
		if agg.AverageScore >= r.cfg.AutoApproveThreshold {
			rec = evaluation.RecommendApprove
		} else {
			reasons = append(reasons, fmt.Sprintf(
				"average score (%.2f) below auto-approve threshold (%.2f)",
				agg.AverageScore, r.cfg.AutoApproveThreshold))
		}
	case agg.Unanimous && agg.RecommendationCounts[evaluation.RecommendReject] > 0:
		if agg.AverageScore <= r.cfg.AutoRejectThreshold {
			rec = evaluation.RecommendReject
		} else {
			reasons = append(reasons, fmt.Sprintf(
				"average score (%.2f) above auto-reject threshold (%.2f)",
				agg.AverageScore, r.cfg.AutoRejectThreshold))
		}
	case agg.Unanimous:
		reasons = append(reasons, "evaluators unanimously recommend human review")
	default:
		reasons = append(reasons, "evaluators did not reach unanimous recommendation")
	}

	if agg.AverageConfidence < r.cfg.MinConfidence {
		reasons = append(reasons, fmt.Sprintf(
			"average confidence (%.2f) below required %.2f",
			agg.AverageConfidence, r.cfg.MinConfidence))
	}

	if rec == evaluation.RecommendApprove && app.FundingRequested >= r.cfg.BudgetReviewThreshold {
		reasons = append(reasons, fmt.Sprintf(
			"funding requested ($%s) exceeds budget review threshold ($%s)",
			groupDigits(app.FundingRequested), groupDigits(r.cfg.BudgetReviewThreshold)))
	}

	route := Route{
		Recommendation: rec,
		AutoExecute:    rec != evaluation.RecommendNeedsReview && len(reasons) == 0,
		ReviewReasons:  reasons,
	}

	if route.AutoExecute {
		for _, veto := range r.vetoes {
			if reason, vetoed := veto(app, agg); vetoed {
				route.AutoExecute = false
				route.ReviewReasons = append(route.ReviewReasons, reason)
			}
		}
	}

	return route
}

// groupDigits renders a whole-dollar amount with thousands separators,
// e.g. 60000 -> "60,000".
func groupDigits(v float64) string {
	s := strconv.FormatFloat(v, 'f', 0, 64)
	if strings.HasPrefix(s, "-") {
		return "-" + groupThousands(s[1:])
	}
	return groupThousands(s)
}
