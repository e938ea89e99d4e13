package service

import (
	"context"
	"testing"
	"time"

	"github.com/opencouncil/councild/internal/domain/observation"
)

func seedObservation(t *testing.T, store *memStore, o *observation.Observation) {
	t.Helper()
	if err := store.CreateObservation(context.Background(), o); err != nil {
		t.Fatal(err)
	}
}

func TestPromoteObservation(t *testing.T) {
	store := newMemStore()
	o := observation.NewDraft("technical", "demos matter", []string{"technical"}, nil, 0.7)
	seedObservation(t, store, o)

	s := NewObservationService(store, testLearningConfig())

	got, err := s.Promote(context.Background(), o.ID, "alex")
	if err != nil {
		t.Fatalf("promote: %v", err)
	}
	if got.Status != observation.StatusActive {
		t.Errorf("status = %s, want active", got.Status)
	}
	if got.ValidatedBy != "alex" || got.ValidatedAt == nil {
		t.Errorf("validation not recorded: %+v", got)
	}

	stored, _ := store.GetObservation(context.Background(), o.ID)
	if stored.Status != observation.StatusActive {
		t.Errorf("promotion not persisted: %s", stored.Status)
	}
}

func TestPromoteDeprecatedObservationFails(t *testing.T) {
	store := newMemStore()
	o := observation.NewDraft("technical", "p", nil, nil, 0.5)
	o.Deprecate()
	seedObservation(t, store, o)

	s := NewObservationService(store, testLearningConfig())
	if _, err := s.Promote(context.Background(), o.ID, "alex"); err == nil {
		t.Error("deprecated observations must not be promotable")
	}
}

func TestDeprecateObservation(t *testing.T) {
	store := newMemStore()
	o := observation.NewDraft("budget", "p", nil, nil, 0.5)
	seedObservation(t, store, o)

	s := NewObservationService(store, testLearningConfig())
	got, err := s.Deprecate(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("deprecate: %v", err)
	}
	if got.Status != observation.StatusDeprecated {
		t.Errorf("status = %s, want deprecated", got.Status)
	}
}

func TestFlagStale(t *testing.T) {
	store := newMemStore()

	// Old and barely used: stale.
	old := observation.NewDraft("technical", "old pattern", nil, nil, 0.5)
	_ = old.Promote("alex")
	old.CreatedAt = time.Now().UTC().AddDate(0, 0, -200)
	old.TimesUsed = 1
	seedObservation(t, store, old)

	// Old but heavily used: kept.
	used := observation.NewDraft("technical", "proven pattern", nil, nil, 0.5)
	_ = used.Promote("alex")
	used.CreatedAt = time.Now().UTC().AddDate(0, 0, -200)
	used.TimesUsed = 12
	seedObservation(t, store, used)

	// Recent: kept regardless of use count.
	fresh := observation.NewDraft("technical", "new pattern", nil, nil, 0.5)
	_ = fresh.Promote("alex")
	seedObservation(t, store, fresh)

	// Draft: never considered.
	draft := observation.NewDraft("technical", "draft pattern", nil, nil, 0.5)
	draft.CreatedAt = time.Now().UTC().AddDate(0, 0, -200)
	seedObservation(t, store, draft)

	s := NewObservationService(store, testLearningConfig())
	stale, err := s.FlagStale(context.Background())
	if err != nil {
		t.Fatalf("flag stale: %v", err)
	}

	if len(stale) != 1 || stale[0] != old.ID {
		t.Errorf("stale = %v, want [%s]", stale, old.ID)
	}

	// Flagging must not change anything.
	stored, _ := store.GetObservation(context.Background(), old.ID)
	if stored.Status != observation.StatusActive {
		t.Errorf("flagged observation was mutated: %s", stored.Status)
	}
}
