// Package observation defines learned patterns that bias future agent
// prompts. Observations move through a human-gated lifecycle: drafts are
// invisible to retrieval until a person promotes them to active.
package observation

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an observation.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusReviewed   Status = "reviewed"
	StatusActive     Status = "active"
	StatusDeprecated Status = "deprecated"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusReviewed, StatusActive, StatusDeprecated:
		return true
	}
	return false
}

// Observation is a learned pattern owned by one agent.
type Observation struct {
	ID      string `json:"id"`
	AgentID string `json:"agent_id"`

	Pattern  string   `json:"pattern"`
	Evidence []string `json:"evidence,omitempty"` // supporting application ids
	Tags     []string `json:"tags,omitempty"`

	// Confidence is the model's own 0..1 estimate attached at generation
	// time, distinct from evaluation confidence.
	Confidence float64 `json:"confidence"`

	Status Status `json:"status"`

	TimesUsed    int `json:"times_used"`
	TimesHelpful int `json:"times_helpful"`

	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	ValidatedBy string     `json:"validated_by,omitempty"`
}

// NewDraft creates a draft observation for the given agent.
func NewDraft(agentID, pattern string, tags, evidence []string, confidence float64) *Observation {
	return &Observation{
		ID:         uuid.NewString(),
		AgentID:    agentID,
		Pattern:    pattern,
		Tags:       tags,
		Evidence:   evidence,
		Confidence: confidence,
		Status:     StatusDraft,
		CreatedAt:  time.Now().UTC(),
	}
}

// Promote marks the observation active, recording who validated it.
// Deprecated observations are terminal and cannot be revived.
func (o *Observation) Promote(reviewer string) error {
	if o.Status == StatusDeprecated {
		return errors.New("observation " + o.ID + " is deprecated")
	}
	now := time.Now().UTC()
	o.Status = StatusActive
	o.ValidatedAt = &now
	o.ValidatedBy = reviewer
	return nil
}

// Deprecate marks the observation terminal, excluding it from retrieval.
func (o *Observation) Deprecate() {
	o.Status = StatusDeprecated
}

// MarkUsed records one injection into an agent prompt.
func (o *Observation) MarkUsed() {
	now := time.Now().UTC()
	o.TimesUsed++
	o.LastUsedAt = &now
}

// RanksBefore reports whether a ranks ahead of b for prompt injection:
// strongest evidence first, then most recently used (never-used last),
// then newest.
func RanksBefore(a, b *Observation) bool {
	if len(a.Evidence) != len(b.Evidence) {
		return len(a.Evidence) > len(b.Evidence)
	}
	switch {
	case a.LastUsedAt != nil && b.LastUsedAt == nil:
		return true
	case a.LastUsedAt == nil && b.LastUsedAt != nil:
		return false
	case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
		return a.LastUsedAt.After(*b.LastUsedAt)
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortForRetrieval orders observations by injection priority, the order
// retrieval hands them to agents.
func SortForRetrieval(obs []Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return RanksBefore(&obs[i], &obs[j])
	})
}
