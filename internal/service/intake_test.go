package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opencouncil/councild/internal/domain/application"
)

func TestCreateStructured(t *testing.T) {
	store := newMemStore()
	s := NewIntakeService(nil, store, testCouncilConfig(), nil)

	app, err := s.CreateStructured(context.Background(), &application.CreateRequest{
		Title:            "Indexer",
		TeamName:         "Indexing Co",
		FundingRequested: 30000,
		FundingCurrency:  "USDC",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.Status != application.StatusPending {
		t.Errorf("status = %s, want pending", app.Status)
	}
	if app.FundingCurrency != "USDC" {
		t.Errorf("currency = %s, want USDC", app.FundingCurrency)
	}

	if _, err := store.GetApplication(context.Background(), app.ID); err != nil {
		t.Errorf("application not persisted: %v", err)
	}
}

func TestCreateStructuredValidation(t *testing.T) {
	s := NewIntakeService(nil, newMemStore(), testCouncilConfig(), nil)

	if _, err := s.CreateStructured(context.Background(), &application.CreateRequest{TeamName: "x"}); err == nil {
		t.Error("expected error for missing title")
	}
	if _, err := s.CreateStructured(context.Background(), &application.CreateRequest{Title: "x"}); err == nil {
		t.Error("expected error for missing team name")
	}
	if _, err := s.CreateStructured(context.Background(), &application.CreateRequest{Title: "x", TeamName: "y", FundingRequested: -5}); err == nil {
		t.Error("expected error for negative funding")
	}
}

func TestCreateFreeformExtraction(t *testing.T) {
	srv := llmServer(t, func(prompt string) string {
		if !strings.Contains(prompt, "Extract structured information") {
			t.Errorf("unexpected prompt: %s", truncate(prompt, 100))
		}
		return `{
			"title": "Validator Dashboard",
			"summary": "A dashboard for validators.",
			"team_name": "Dash Labs",
			"funding_requested": 42000,
			"funding_currency": "USD",
			"milestones": [{"title": "MVP", "timeline": "6 weeks", "funding_amount": 20000}]
		}`
	})
	defer srv.Close()

	cfg := testCouncilConfig()
	cfg.ParserModel = "test"
	store := newMemStore()
	s := NewIntakeService(newGatewayClient(srv.URL), store, cfg, nil)

	raw := "Validator Dashboard\nWe want to build a dashboard. Asking $42,000 USD."

	var events []Event
	app, err := s.CreateFreeform(context.Background(), raw, map[string]any{"program_id": "p1"}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if app.Title != "Validator Dashboard" || app.TeamName != "Dash Labs" {
		t.Errorf("extracted fields wrong: %+v", app)
	}
	if app.FundingRequested != 42000 {
		t.Errorf("funding = %v, want 42000", app.FundingRequested)
	}
	if app.ProgramID != "p1" {
		t.Errorf("program id = %q", app.ProgramID)
	}
	if app.Description == "" || !strings.HasPrefix(app.Description, "Validator Dashboard") {
		t.Errorf("description should keep the raw text: %q", app.Description)
	}
	if len(app.Milestones) != 1 || app.Milestones[0].Title != "MVP" {
		t.Errorf("milestones = %+v", app.Milestones)
	}

	assertEventOrder(t, events, []string{
		"stage:parsing:started",
		"stage:parsing:complete",
	})
}

func TestCreateFreeformFallsBackToBasicParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "down"}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cfg := testCouncilConfig()
	cfg.ParserModel = "test"
	s := NewIntakeService(newGatewayClient(srv.URL), newMemStore(), cfg, nil)

	raw := "Community Education Portal\nWe are requesting $12,500.00 for workshops."
	app, err := s.CreateFreeform(context.Background(), raw, nil, nil)
	if err != nil {
		t.Fatalf("fallback parse should not fail: %v", err)
	}

	if app.Title != "Community Education Portal" {
		t.Errorf("title = %q", app.Title)
	}
	if app.FundingRequested != 12500 {
		t.Errorf("funding = %v, want 12500", app.FundingRequested)
	}
}

func TestCreateFreeformEmpty(t *testing.T) {
	s := NewIntakeService(nil, newMemStore(), testCouncilConfig(), nil)
	if _, err := s.CreateFreeform(context.Background(), "   \n ", nil, nil); err == nil {
		t.Error("expected error for empty submission")
	}
}

func TestBasicParse(t *testing.T) {
	app := basicParse("My Project Title\nSome description mentioning $5,000 USD of funding.")
	if app.Title != "My Project Title" {
		t.Errorf("title = %q", app.Title)
	}
	if app.FundingRequested != 5000 {
		t.Errorf("funding = %v, want 5000", app.FundingRequested)
	}

	long := strings.Repeat("x", 150)
	if got := basicParse(long).Title; len(got) != 100 {
		t.Errorf("title should be capped at 100 chars, got %d", len(got))
	}
}
