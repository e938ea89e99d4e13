package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/opencouncil/councild/internal/adapter/litellm"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/domain"
	"github.com/opencouncil/councild/internal/domain/application"
	"github.com/opencouncil/councild/internal/domain/decision"
	"github.com/opencouncil/councild/internal/domain/observation"
	"github.com/opencouncil/councild/internal/domain/team"
	"github.com/opencouncil/councild/internal/port/database"
	"github.com/opencouncil/councild/internal/port/messagequeue"
)

// llmServer fakes the inference gateway: respond receives the user prompt
// of each completion request and returns the model output.
func llmServer(t *testing.T, respond func(prompt string) string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}

		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode completion request: %v", err)
		}
		var prompt string
		for _, m := range req.Messages {
			if m.Role == "user" {
				prompt = m.Content
			}
		}

		content, _ := json.Marshal(respond(prompt))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"model":"test","choices":[{"message":{"content":` + string(content) + `}}],"usage":{"prompt_tokens":10,"completion_tokens":5}}`))
	}))
}

func newGatewayClient(url string) *litellm.Client {
	return litellm.NewClient(config.Gateway{URL: url, MasterKey: "sk-test", Timeout: 5 * time.Second})
}

// memStore is an in-memory database.Store for service tests.
type memStore struct {
	mu           sync.Mutex
	applications map[string]*application.Application
	decisions    map[string]*decision.Decision // by application id
	observations map[string]*observation.Observation
	teams        map[string]*team.Profile
}

func newMemStore() *memStore {
	return &memStore{
		applications: make(map[string]*application.Application),
		decisions:    make(map[string]*decision.Decision),
		observations: make(map[string]*observation.Observation),
		teams:        make(map[string]*team.Profile),
	}
}

func (m *memStore) CreateApplication(_ context.Context, app *application.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *memStore) GetApplication(_ context.Context, id string) (*application.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *app
	return &cp, nil
}

func (m *memStore) ListApplications(_ context.Context, status application.Status) ([]application.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []application.Application
	for _, app := range m.applications {
		if status == "" || app.Status == status {
			out = append(out, *app)
		}
	}
	return out, nil
}

func (m *memStore) UpdateApplication(_ context.Context, app *application.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *memStore) UpdateApplicationStatus(_ context.Context, id string, status application.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	app, ok := m.applications[id]
	if !ok {
		return domain.ErrNotFound
	}
	app.Status = status
	return nil
}

func (m *memStore) SaveDecision(_ context.Context, d *decision.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.decisions[d.ApplicationID] = &cp
	return nil
}

func (m *memStore) GetDecisionByApplication(_ context.Context, applicationID string) (*decision.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.decisions[applicationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memStore) CreateObservation(_ context.Context, o *observation.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.observations[o.ID] = &cp
	return nil
}

func (m *memStore) GetObservation(_ context.Context, id string) (*observation.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.observations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListObservations(_ context.Context, f database.ObservationFilter) ([]observation.Observation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []observation.Observation
	for _, o := range m.observations {
		if f.AgentID != "" && o.AgentID != f.AgentID {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		if len(f.Tags) > 0 && !tagsIntersect(o.Tags, f.Tags) {
			continue
		}
		out = append(out, *o)
	}
	observation.SortForRetrieval(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func tagsIntersect(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (m *memStore) UpdateObservation(_ context.Context, o *observation.Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.observations[o.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *o
	m.observations[o.ID] = &cp
	return nil
}

func (m *memStore) SaveTeam(_ context.Context, p *team.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.teams[p.ID] = &cp
	return nil
}

func (m *memStore) GetTeam(_ context.Context, id string) (*team.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.teams[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetTeamByName(_ context.Context, name string) (*team.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.teams {
		if p.CanonicalName == name {
			cp := *p
			return &cp, nil
		}
		for _, a := range p.Aliases {
			if a == name {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStore) GetTeamByWallet(_ context.Context, wallet string) (*team.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.teams {
		for _, w := range p.Wallets {
			if w == wallet {
				cp := *p
				return &cp, nil
			}
		}
	}
	return nil, domain.ErrNotFound
}

// recordingQueue captures published messages and delivers subscriptions
// synchronously.
type recordingQueue struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newRecordingQueue() *recordingQueue {
	return &recordingQueue{published: make(map[string][][]byte)}
}

func (q *recordingQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published[subject] = append(q.published[subject], data)
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}

func (q *recordingQueue) Drain() error      { return nil }
func (q *recordingQueue) Close() error      { return nil }
func (q *recordingQueue) IsConnected() bool { return true }

func (q *recordingQueue) count(subject string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.published[subject])
}

// nopBroadcaster discards broadcast events.
type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastEvent(context.Context, string, any) {}
