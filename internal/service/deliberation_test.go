package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opencouncil/councild/internal/domain/agent"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/evaluation"
)

func testRoster() agent.Roster {
	return agent.Roster{
		{ID: "technical", Name: "Technical", Model: "test", Persona: "p", Tags: []string{"technical"}},
		{ID: "budget", Name: "Budget", Model: "test", Persona: "p", Tags: []string{"budget"}},
	}
}

func TestDeliberationInsignificantRevisionKept(t *testing.T) {
	// Agent claims a revision but only moves 0.70 -> 0.80 (delta 0.10 <
	// 0.15) with the same recommendation: the prior evaluation stands.
	srv := llmServer(t, func(string) string {
		return `{"revised": true, "score": 0.80, "recommendation": "approve", "confidence": 0.9, "revision_rationale": "reworded"}`
	})
	defer srv.Close()

	d := NewDeliberator(newGatewayClient(srv.URL), testRoster(), testCouncilConfig(), nil)
	app := application.New("T", "Team")

	evals := []*evaluation.Evaluation{
		evalWith("technical", 0.70, 0.8, evaluation.RecommendApprove),
		evalWith("budget", 0.70, 0.8, evaluation.RecommendApprove),
	}

	updated, revisions := d.RunRound(context.Background(), app, evals, 1)
	if revisions != 0 {
		t.Errorf("expected 0 significant revisions, got %d", revisions)
	}
	for _, e := range updated {
		if e.Revised || e.Score != 0.70 {
			t.Errorf("evaluation should be unchanged: %+v", e)
		}
	}
}

func TestDeliberationSignificantRevisionRecorded(t *testing.T) {
	srv := llmServer(t, func(string) string {
		return `{"revised": true, "score": 0.90, "recommendation": "approve", "confidence": 0.95, "revision_rationale": "peers surfaced strengths I undervalued"}`
	})
	defer srv.Close()

	d := NewDeliberator(newGatewayClient(srv.URL), testRoster(), testCouncilConfig(), nil)
	app := application.New("T", "Team")

	evals := []*evaluation.Evaluation{
		evalWith("technical", 0.70, 0.8, evaluation.RecommendApprove),
		evalWith("budget", 0.70, 0.8, evaluation.RecommendApprove),
	}

	updated, revisions := d.RunRound(context.Background(), app, evals, 1)
	if revisions != 2 {
		t.Errorf("expected 2 revisions, got %d", revisions)
	}
	for _, e := range updated {
		if !e.Revised {
			t.Fatalf("expected revised evaluation: %+v", e)
		}
		if e.Score != 0.90 || e.OriginalScore != 0.70 {
			t.Errorf("score/original = %v/%v, want 0.90/0.70", e.Score, e.OriginalScore)
		}
		if e.Round != 1 {
			t.Errorf("round = %d, want 1", e.Round)
		}
		if e.RevisionRationale == "" {
			t.Error("revision rationale missing")
		}
	}
}

func TestDeliberationRecommendationFlipIsSignificant(t *testing.T) {
	// Score delta is tiny but the recommendation flipped: still a revision.
	srv := llmServer(t, func(string) string {
		return `{"revised": true, "score": 0.72, "recommendation": "needs_review", "confidence": 0.6, "revision_rationale": "budget concerns"}`
	})
	defer srv.Close()

	d := NewDeliberator(newGatewayClient(srv.URL), testRoster(), testCouncilConfig(), nil)
	app := application.New("T", "Team")

	evals := []*evaluation.Evaluation{
		evalWith("technical", 0.70, 0.8, evaluation.RecommendApprove),
	}
	roster := testRoster()[:1]
	d = NewDeliberator(newGatewayClient(srv.URL), roster, testCouncilConfig(), nil)

	updated, revisions := d.RunRound(context.Background(), app, evals, 1)
	if revisions != 1 {
		t.Fatalf("expected 1 revision, got %d", revisions)
	}
	if updated[0].Recommendation != evaluation.RecommendNeedsReview {
		t.Errorf("recommendation = %s, want needs_review", updated[0].Recommendation)
	}
}

func TestDeliberationOutOfRangeScoreClampedBeforeDelta(t *testing.T) {
	// The model returns 1.2, which clamps to the prior score of 1.0: no
	// position actually moved, so no revision is recorded.
	srv := llmServer(t, func(string) string {
		return `{"revised": true, "score": 1.2, "recommendation": "approve", "confidence": 0.95, "revision_rationale": "even more convinced"}`
	})
	defer srv.Close()

	roster := testRoster()[:1]
	d := NewDeliberator(newGatewayClient(srv.URL), roster, testCouncilConfig(), nil)
	app := application.New("T", "Team")

	prior := evalWith("technical", 1.0, 0.9, evaluation.RecommendApprove)
	updated, revisions := d.RunRound(context.Background(), app, []*evaluation.Evaluation{prior}, 1)
	if revisions != 0 {
		t.Errorf("expected 0 revisions, got %d", revisions)
	}
	if updated[0] != prior {
		t.Errorf("evaluation should be unchanged: %+v", updated[0])
	}
}

func TestDeliberationDeclinedRevision(t *testing.T) {
	srv := llmServer(t, func(string) string {
		return `{"revised": false, "score": 0.70, "recommendation": "approve", "confidence": 0.8, "revision_rationale": "position holds"}`
	})
	defer srv.Close()

	d := NewDeliberator(newGatewayClient(srv.URL), testRoster(), testCouncilConfig(), nil)
	app := application.New("T", "Team")

	evals := []*evaluation.Evaluation{
		evalWith("technical", 0.70, 0.8, evaluation.RecommendApprove),
		evalWith("budget", 0.30, 0.8, evaluation.RecommendReject),
	}

	_, revisions := d.RunRound(context.Background(), app, evals, 1)
	if revisions != 0 {
		t.Errorf("expected 0 revisions when agents decline, got %d", revisions)
	}
}

func TestDeliberationGatewayFailureKeepsPrevious(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeliberator(newGatewayClient(srv.URL), testRoster(), testCouncilConfig(), nil)
	app := application.New("T", "Team")

	prior := evalWith("technical", 0.65, 0.75, evaluation.RecommendNeedsReview)
	updated, revisions := d.RunRound(context.Background(), app, []*evaluation.Evaluation{prior}, 1)
	if revisions != 0 {
		t.Errorf("expected 0 revisions, got %d", revisions)
	}
	if updated[0] != prior {
		t.Error("failed revision call must keep the previous evaluation")
	}
}
