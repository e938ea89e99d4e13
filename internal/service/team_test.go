package service

import (
	"context"
	"testing"

	"github.com/opencouncil/councild/internal/domain/application"
)

func TestResolveCreatesProfileOnFirstSight(t *testing.T) {
	store := newMemStore()
	s := NewTeamService(store, nil)

	app := application.New("First App", "Fresh Team")
	app.TeamMembers = []application.TeamMember{
		{Name: "Ada", Role: "Lead", WalletAddress: "0xabc"},
	}

	ctx, err := s.Resolve(context.Background(), app)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if app.TeamID == "" {
		t.Error("resolve must link the application to its team")
	}
	if ctx.CanonicalName != "Fresh Team" || ctx.PreviousApplications != 1 {
		t.Errorf("unexpected context: %+v", ctx)
	}

	p, err := store.GetTeamByName(context.Background(), "Fresh Team")
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if len(p.Wallets) != 1 || p.Wallets[0] != "0xabc" {
		t.Errorf("wallets = %v", p.Wallets)
	}
	if len(p.Members) != 1 || p.Members[0].Name != "Ada" {
		t.Errorf("members = %+v", p.Members)
	}
}

func TestResolveMatchesByWalletAndRecordsAlias(t *testing.T) {
	store := newMemStore()
	s := NewTeamService(store, nil)

	first := application.New("First App", "Protocol Labs East")
	first.TeamMembers = []application.TeamMember{{Name: "Ada", WalletAddress: "0xabc"}}
	if _, err := s.Resolve(context.Background(), first); err != nil {
		t.Fatal(err)
	}

	// Same wallet, different spelling of the team name.
	second := application.New("Second App", "PL East")
	second.TeamMembers = []application.TeamMember{
		{Name: "Ada", WalletAddress: "0xabc"},
		{Name: "Grace", WalletAddress: "0xdef"},
	}
	ctx, err := s.Resolve(context.Background(), second)
	if err != nil {
		t.Fatal(err)
	}

	if second.TeamID != first.TeamID {
		t.Error("wallet match should resolve to the existing profile")
	}
	if ctx.PreviousApplications != 2 {
		t.Errorf("previous applications = %d, want 2", ctx.PreviousApplications)
	}

	p, _ := store.GetTeam(context.Background(), first.TeamID)
	if p.CanonicalName != "Protocol Labs East" {
		t.Errorf("canonical name changed: %q", p.CanonicalName)
	}
	if len(p.Aliases) != 1 || p.Aliases[0] != "PL East" {
		t.Errorf("aliases = %v", p.Aliases)
	}
	if len(p.Members) != 2 {
		t.Errorf("members not merged: %+v", p.Members)
	}
	if len(p.Wallets) != 2 {
		t.Errorf("wallets = %v", p.Wallets)
	}

	// The alias now resolves directly by name.
	if _, err := store.GetTeamByName(context.Background(), "PL East"); err != nil {
		t.Errorf("alias lookup failed: %v", err)
	}
}

func TestResolveIsIdempotentPerApplication(t *testing.T) {
	store := newMemStore()
	s := NewTeamService(store, nil)

	app := application.New("App", "Team")
	if _, err := s.Resolve(context.Background(), app); err != nil {
		t.Fatal(err)
	}
	ctx, err := s.Resolve(context.Background(), app)
	if err != nil {
		t.Fatal(err)
	}
	if ctx.PreviousApplications != 1 {
		t.Errorf("re-resolving the same application must not double-count: %d", ctx.PreviousApplications)
	}
}

func TestRecordOutcome(t *testing.T) {
	store := newMemStore()
	s := NewTeamService(store, nil)

	app := application.New("Funded App", "Delivery Team")
	app.FundingRequested = 25000
	if _, err := s.Resolve(context.Background(), app); err != nil {
		t.Fatal(err)
	}

	if err := s.RecordOutcome(context.Background(), app, true); err != nil {
		t.Fatalf("record success: %v", err)
	}
	if err := s.RecordOutcome(context.Background(), app, false); err != nil {
		t.Fatalf("record failure: %v", err)
	}

	p, _ := store.GetTeam(context.Background(), app.TeamID)
	if p.SuccessfulGrants != 1 || p.FailedGrants != 1 {
		t.Errorf("grant counters = %d/%d, want 1/1", p.SuccessfulGrants, p.FailedGrants)
	}
	// Only successful outcomes add to the funded total.
	if p.TotalFunded != 25000 {
		t.Errorf("total funded = %v, want 25000", p.TotalFunded)
	}
}

func TestRecordOutcomeUnknownTeam(t *testing.T) {
	s := NewTeamService(newMemStore(), nil)
	app := application.New("Orphan App", "Nobody")
	if err := s.RecordOutcome(context.Background(), app, true); err == nil {
		t.Error("expected error for unknown team")
	}
}
