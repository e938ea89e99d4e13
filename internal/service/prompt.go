package service

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/domain/team"
)

// SimilarApplication is a past application surfaced to evaluators for
// comparison, with its final outcome.
type SimilarApplication struct {
	Title    string
	Summary  string
	Approved bool
}

func sanitizePromptInput(s string) string {
	// Strip non-printable control characters (keep newlines, tabs, spaces).
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	// Remove common prompt injection role markers at line beginnings.
	// These could trick the LLM into treating user data as system instructions.
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(strings.ToLower(line))
		for _, prefix := range []string{
			"system:", "assistant:", "user:", "[system]", "[assistant]",
			"<|system|>", "<|assistant|>", "<|im_start|>",
			"### system", "### assistant", "### instruction",
		} {
			if strings.HasPrefix(trimmed, prefix) {
				// Replace the role marker prefix with a safe escaped version.
				lines[i] = "[sanitized] " + line
				break
			}
		}
	}
	s = strings.Join(lines, "\n")

	// Enforce a reasonable length limit to prevent context flooding.
	const maxInputLen = 10000
	if len(s) > maxInputLen {
		s = s[:maxInputLen] + "\n[truncated]"
	}

	return s
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// formatMoney renders an amount with thousands separators and two decimals,
// e.g. 50000 -> "50,000.00".
func formatMoney(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	intPart, frac, _ := strings.Cut(s, ".")

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	out := groupThousands(intPart) + "." + frac
	if neg {
		out = "-" + out
	}
	return out
}

// groupThousands inserts comma separators into a plain digit string.
func groupThousands(digits string) string {
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}

// agentTags returns the tag set used to retrieve observations for one agent
// evaluating one application: the agent's own tags plus keyword-derived tags
// from the application text.
func agentTags(ag *agent.Agent, app *application.Application) []string {
	seen := make(map[string]bool, len(ag.Tags))
	tags := make([]string, 0, len(ag.Tags)+2)
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			tags = append(tags, t)
		}
	}
	for _, t := range ag.Tags {
		add(t)
	}

	text := strings.ToLower(app.Title + " " + app.Description + " " + app.TechnicalApproach)

	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(text, w) {
				return true
			}
		}
		return false
	}

	type keywordRule struct {
		tag    string
		agents []string
		words  []string
	}
	rules := []keywordRule{
		{"infrastructure", []string{"technical", "ecosystem"}, []string{"infrastructure", "sdk", "api"}},
		{"defi", []string{"technical", "ecosystem", "impact"}, []string{"defi", "finance", "trading"}},
		{"consumer", []string{"ecosystem", "impact"}, []string{"nft", "gaming", "metaverse"}},
		{"security", []string{"technical"}, []string{"security", "audit"}},
		{"education", []string{"ecosystem", "impact"}, []string{"education", "documentation"}},
	}
	for _, r := range rules {
		if !containsAny(r.words...) {
			continue
		}
		for _, id := range r.agents {
			if ag.ID == id {
				add(r.tag)
				break
			}
		}
	}

	return tags
}

// formatApplication renders an application as the markdown document agents
// evaluate. Every applicant-supplied field passes through sanitization.
func formatApplication(app *application.Application) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", sanitizePromptInput(app.Title))
	fmt.Fprintf(&b, "**Team:** %s\n", sanitizePromptInput(app.TeamName))
	fmt.Fprintf(&b, "**Funding Requested:** %s %s\n", formatMoney(app.FundingRequested), app.FundingCurrency)

	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(&b, "\n## %s\n%s\n", title, sanitizePromptInput(body))
	}

	section("Summary", app.Summary)
	section("Problem Statement", app.ProblemStatement)
	section("Proposed Solution", app.ProposedSolution)
	section("Technical Approach", app.TechnicalApproach)

	if len(app.TeamMembers) > 0 {
		b.WriteString("\n## Team Members\n")
		for _, m := range app.TeamMembers {
			fmt.Fprintf(&b, "- **%s**", sanitizePromptInput(m.Name))
			if m.Role != "" {
				fmt.Fprintf(&b, " (%s)", sanitizePromptInput(m.Role))
			}
			if m.Bio != "" {
				fmt.Fprintf(&b, ": %s", sanitizePromptInput(m.Bio))
			}
			b.WriteString("\n")
		}
	}

	section("Prior Work & Experience", app.PriorWork)

	if len(app.BudgetBreakdown) > 0 {
		b.WriteString("\n## Budget Breakdown\n")
		for _, item := range app.BudgetBreakdown {
			fmt.Fprintf(&b, "- **%s**: %s %s", sanitizePromptInput(item.Category), formatMoney(item.Amount), app.FundingCurrency)
			if item.Description != "" {
				fmt.Fprintf(&b, " - %s", sanitizePromptInput(item.Description))
			}
			b.WriteString("\n")
		}
	}

	if len(app.Milestones) > 0 {
		b.WriteString("\n## Milestones\n")
		var pctSum float64
		for i, m := range app.Milestones {
			pctSum += m.FundingPercentage
			fmt.Fprintf(&b, "\n### Milestone %d: %s\n", i+1, sanitizePromptInput(m.Title))
			if m.Description != "" {
				fmt.Fprintf(&b, "%s\n", sanitizePromptInput(m.Description))
			}
			if m.Timeline != "" {
				fmt.Fprintf(&b, "**Timeline:** %s\n", sanitizePromptInput(m.Timeline))
			}
			if m.FundingAmount > 0 {
				fmt.Fprintf(&b, "**Funding:** %s %s\n", formatMoney(m.FundingAmount), app.FundingCurrency)
			}
			if len(m.Deliverables) > 0 {
				b.WriteString("**Deliverables:**\n")
				for _, d := range m.Deliverables {
					fmt.Fprintf(&b, "  - %s\n", sanitizePromptInput(d))
				}
			}
		}
		// Percentages are advisory and never corrected, but a mismatch is
		// worth an evaluator's attention.
		if pctSum > 0 && (pctSum < 99 || pctSum > 101) {
			fmt.Fprintf(&b, "\nNote: milestone funding percentages sum to %.0f%%, not 100%%.\n", pctSum)
		}
	}

	var links []string
	if app.Website != "" {
		links = append(links, sanitizePromptInput(app.Website))
	}
	if app.GitHub != "" {
		links = append(links, sanitizePromptInput(app.GitHub))
	}
	if app.Demo != "" {
		links = append(links, sanitizePromptInput(app.Demo))
	}
	if len(links) > 0 {
		fmt.Fprintf(&b, "\n## Links\n%s\n", strings.Join(links, " | "))
	}

	return b.String()
}

// buildEvaluationPrompt assembles the full prompt for one agent's initial
// evaluation: persona, learned observations, team history, similar past
// applications, and the application itself.
func buildEvaluationPrompt(
	ag *agent.Agent,
	app *application.Application,
	observations []*observation.Observation,
	teamCtx *team.Context,
	similar []SimilarApplication,
) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Your Role\n%s\n", ag.Persona)

	if len(observations) > 0 {
		b.WriteString("\n# Patterns You've Learned\n")
		b.WriteString("Based on your experience reviewing applications, you've observed:\n")
		for _, o := range observations {
			fmt.Fprintf(&b, "- %s (confidence: %.0f%%)\n", o.Pattern, o.Confidence*100)
		}
	}

	if teamCtx != nil && teamCtx.PreviousApplications > 0 {
		b.WriteString("\n# Team History\n")
		fmt.Fprintf(&b, "This team (%s) has applied before:\n", sanitizePromptInput(teamCtx.CanonicalName))
		fmt.Fprintf(&b, "- Previous applications: %d\n", teamCtx.PreviousApplications)
		fmt.Fprintf(&b, "- Successful grants: %d\n", teamCtx.SuccessfulGrants)
		fmt.Fprintf(&b, "- Failed grants: %d\n", teamCtx.FailedGrants)
		if teamCtx.TotalFunded > 0 {
			fmt.Fprintf(&b, "- Total previously funded: $%s\n", formatMoney(teamCtx.TotalFunded))
		}
		if teamCtx.MilestoneCompletionRate > 0 {
			fmt.Fprintf(&b, "- Milestone completion rate: %.0f%%\n", teamCtx.MilestoneCompletionRate*100)
		}
	}

	if len(similar) > 0 {
		b.WriteString("\n# Similar Past Applications\n")
		for i, s := range similar {
			if i >= 3 {
				break
			}
			outcome := "✗ Rejected"
			if s.Approved {
				outcome = "✓ Approved"
			}
			fmt.Fprintf(&b, "%d. **%s** (%s)", i+1, sanitizePromptInput(s.Title), outcome)
			if s.Summary != "" {
				fmt.Fprintf(&b, ": %s", sanitizePromptInput(truncate(s.Summary, 200)))
			}
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n# Application to Evaluate\n%s\n", formatApplication(app))

	b.WriteString(`
# Your Evaluation

Evaluate this application from your role's perspective. Respond with JSON:
{
    "score": float 0-1 (0 = definitely reject, 1 = definitely approve),
    "recommendation": "approve" | "reject" | "needs_review",
    "confidence": float 0-1 (how certain you are),
    "rationale": "2-3 paragraphs explaining your assessment",
    "strengths": ["list", "of", "strengths"],
    "concerns": ["list", "of", "concerns"],
    "questions": ["questions", "you", "would", "ask"]
}

Be specific. Reference concrete details from the application. Explain your reasoning.
`)

	return b.String()
}

// evaluatorLabels assigns anonymized labels ("Evaluator A", ...) to agent ids
// in a deterministic shuffled order. The seed ties the shuffle to one
// application and round so labels are stable within a round but carry no
// cross-round identity.
func evaluatorLabels(agentIDs []string, seed string) map[string]string {
	ids := make([]string, len(agentIDs))
	copy(ids, agentIDs)
	sort.Strings(ids)

	h := fnv.New64a()
	h.Write([]byte(seed))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	labels := make(map[string]string, len(ids))
	for i, id := range ids {
		labels[id] = "Evaluator " + string(rune('A'+i))
	}
	return labels
}

// formatEvaluations renders evaluations for deliberation or synthesis
// prompts. When anonymize is true, agent names are replaced with shuffled
// Evaluator labels; excludeAgentID drops that agent's own evaluation.
func formatEvaluations(evals []*evaluation.Evaluation, anonymize bool, excludeAgentID, seed string) string {
	var labels map[string]string
	if anonymize {
		ids := make([]string, 0, len(evals))
		for _, e := range evals {
			ids = append(ids, e.AgentID)
		}
		labels = evaluatorLabels(ids, seed)
	}

	var b strings.Builder
	for _, e := range evals {
		if e.AgentID == excludeAgentID {
			continue
		}

		name := e.AgentName
		if anonymize {
			name = labels[e.AgentID]
		}

		fmt.Fprintf(&b, "## %s\n", name)
		fmt.Fprintf(&b, "**Score:** %.2f | **Recommendation:** %s | **Confidence:** %.0f%%\n", e.Score, e.Recommendation, e.Confidence*100)

		fmt.Fprintf(&b, "\n### Rationale\n%s\n", e.Rationale)

		bullets := func(title string, items []string) {
			if len(items) == 0 {
				return
			}
			fmt.Fprintf(&b, "\n### %s\n", title)
			for _, item := range items {
				fmt.Fprintf(&b, "- %s\n", item)
			}
		}
		bullets("Strengths", e.Strengths)
		bullets("Concerns", e.Concerns)
		bullets("Questions", e.Questions)

		b.WriteString("\n---\n\n")
	}

	return strings.TrimSuffix(b.String(), "\n---\n\n")
}

// buildDeliberationPrompt shows an agent its own previous evaluation and the
// anonymized assessments of its peers, and asks whether it revises.
func buildDeliberationPrompt(e *evaluation.Evaluation, peers string, round int) string {
	joinOr := func(items []string) string {
		if len(items) == 0 {
			return "None listed"
		}
		return strings.Join(items, ", ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Deliberation Round %d\n\n", round)
	b.WriteString("You previously evaluated this application. Now you can see how other evaluators assessed it.\n\n")
	b.WriteString("## Your Previous Evaluation\n")
	fmt.Fprintf(&b, "**Score:** %.2f | **Recommendation:** %s | **Confidence:** %.0f%%\n\n", e.Score, e.Recommendation, e.Confidence*100)
	fmt.Fprintf(&b, "**Rationale:** %s\n\n", e.Rationale)
	fmt.Fprintf(&b, "**Strengths:** %s\n\n", joinOr(e.Strengths))
	fmt.Fprintf(&b, "**Concerns:** %s\n\n", joinOr(e.Concerns))
	b.WriteString("---\n\n## Other Evaluators' Assessments\n")
	b.WriteString(peers)
	b.WriteString(`

---

## Your Task

Review the other evaluations. Consider:
- Did others identify strengths or concerns you missed?
- Do their arguments change your assessment?
- Is there consensus or significant disagreement?

You may revise your position or maintain it. If revising, explain what changed your mind.

Respond with JSON:
{
    "revised": true/false,
    "score": float 0-1,
    "recommendation": "approve" | "reject" | "needs_review",
    "confidence": float 0-1,
    "revision_rationale": "explanation of what changed (or why you're maintaining position)"
}`)

	return b.String()
}
