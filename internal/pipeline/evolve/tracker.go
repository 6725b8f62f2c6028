// Package evolve tracks how insights change over the lifetime of a meeting:
// escalation, expansion, refinement, or plain duplication, with a merged
// record and append-only version history per insight.
package evolve

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/meetwise/streamcore/internal/insight"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/trace"
)

// Type labels how a new observation relates to tracked insights.
type Type string

const (
	New       Type = "new"
	Escalated Type = "escalated"
	Expanded  Type = "expanded"
	Refined   Type = "refined"
	Duplicate Type = "duplicate"
)

// Version is one snapshot in an insight's history.
type Version struct {
	Content       string           `json:"content"`
	Priority      insight.Priority `json:"priority"`
	Timestamp     time.Time        `json:"timestamp"`
	ChunkIndex    int              `json:"chunk_index"`
	EvolutionType Type             `json:"evolution_type"`
}

// Record is the tracked lifecycle of one insight. Original fields are
// immutable once set; current fields move with each merge. The invariant
// len(Versions) == EvolutionCount+1 holds throughout (original + evolutions).
type Record struct {
	ID               string
	InsightType      string
	OriginalContent  string
	OriginalPriority insight.Priority
	CreatedAt        time.Time

	Content     string
	Priority    insight.Priority
	AssignedTo  string
	DueDate     string
	LastUpdated time.Time

	Versions       []Version
	EvolutionCount int

	embedding []float32
}

// Merged is the downstream-display form of an evolved insight.
type Merged struct {
	ID            string           `json:"id"`
	InsightType   string           `json:"insight_type"`
	Content       string           `json:"content"`
	Priority      insight.Priority `json:"priority"`
	AssignedTo    string           `json:"assigned_to,omitempty"`
	DueDate       string           `json:"due_date,omitempty"`
	EvolutionType Type             `json:"evolution_type"`
	EvolutionNote string           `json:"evolution_note"`
}

// Result reports an evolution decision.
type Result struct {
	IsEvolution bool
	Type        Type
	OriginalID  string
	Similarity  float64
	Reason      string
	Merged      *Merged
}

// Config holds evolution thresholds. The related/duplicate band (default
// 0.75/0.85) separates "similar enough to check evolution" from "a no-op".
type Config struct {
	RelatedThreshold   float64
	DuplicateThreshold float64
	ExpansionGrowth    float64 // min content length growth ratio
	ExpansionMinWords  int     // min extra words for expansion
	RefinementBand     float64 // max content length drift for refinement
}

func (c Config) withDefaults() Config {
	if c.RelatedThreshold <= 0 {
		c.RelatedThreshold = 0.75
	}
	if c.DuplicateThreshold <= 0 {
		c.DuplicateThreshold = 0.85
	}
	if c.ExpansionGrowth <= 0 {
		c.ExpansionGrowth = 0.30
	}
	if c.ExpansionMinWords <= 0 {
		c.ExpansionMinWords = 5
	}
	if c.RefinementBand <= 0 {
		c.RefinementBand = 0.20
	}
	return c
}

// Tracker keeps per-session evolution state.
type Tracker struct {
	embedder provider.Embedder
	cfg      Config

	mu       sync.Mutex
	sessions map[string][]*Record
}

// NewTracker creates an evolution tracker.
func NewTracker(embedder provider.Embedder, cfg Config) *Tracker {
	return &Tracker{
		embedder: embedder,
		cfg:      cfg.withDefaults(),
		sessions: make(map[string][]*Record),
	}
}

// CheckEvolution decides how in relates to previously tracked insights of
// the same type in this session and merges when it evolves one of them.
func (t *Tracker) CheckEvolution(ctx context.Context, sessionID string, in insight.Insight, chunkIndex int) Result {
	ctx, span := trace.StartSpan(ctx, "check_evolution")
	defer span.End()
	span.SetAttr("insight_type", in.Type)

	log := trace.Logger(ctx)

	vec, err := t.embedder.Embed(ctx, in.Content, true)
	if err != nil || len(vec) == 0 {
		// Fail open: an unembeddable insight is stored as brand new.
		log.Warn("embedding failed, storing insight as new", "error", err)
		t.store(sessionID, in, nil, chunkIndex)
		return Result{Type: New, Reason: "embedding_unavailable"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	best, bestSim := t.findRelatedLocked(sessionID, in.Type, vec)
	if best == nil {
		t.storeLocked(sessionID, in, vec, chunkIndex)
		return Result{Type: New, Similarity: bestSim, Reason: "no_related_insight"}
	}

	// Escalation outranks expansion outranks refinement: a priority bump
	// matters even when content barely changed.
	switch {
	case in.Priority > best.Priority:
		return t.mergeLocked(best, in, vec, chunkIndex, Escalated, bestSim,
			fmt.Sprintf("priority raised %s -> %s", best.Priority, in.Priority))

	case t.isExpansion(best.Content, in.Content):
		return t.mergeLocked(best, in, vec, chunkIndex, Expanded, bestSim,
			"content expanded with additional detail")

	case t.isRefinement(best, in):
		return t.mergeLocked(best, in, vec, chunkIndex, Refined, bestSim,
			"concrete owner or deadline added")

	case bestSim > t.cfg.DuplicateThreshold:
		return Result{
			IsEvolution: false,
			Type:        Duplicate,
			OriginalID:  best.ID,
			Similarity:  bestSim,
			Reason:      "near-identical to tracked insight",
		}

	default:
		// Related but distinct enough to warrant its own entry.
		t.storeLocked(sessionID, in, vec, chunkIndex)
		return Result{Type: New, Similarity: bestSim, Reason: "related_but_distinct"}
	}
}

func (t *Tracker) findRelatedLocked(sessionID, insightType string, vec []float32) (*Record, float64) {
	var best *Record
	bestSim := -1.0
	for _, rec := range t.sessions[sessionID] {
		if rec.InsightType != insightType || len(rec.embedding) == 0 {
			continue
		}
		sim := provider.Cosine(vec, rec.embedding)
		if sim > bestSim {
			bestSim = sim
			best = rec
		}
	}
	if best == nil || bestSim < t.cfg.RelatedThreshold {
		return nil, bestSim
	}
	return best, bestSim
}

func (t *Tracker) isExpansion(current, next string) bool {
	curLen, nextLen := len(current), len(next)
	if curLen == 0 {
		return false
	}
	grown := float64(nextLen) >= float64(curLen)*(1+t.cfg.ExpansionGrowth)
	extraWords := len(strings.Fields(next)) >= len(strings.Fields(current))+t.cfg.ExpansionMinWords
	return grown && extraWords
}

func (t *Tracker) isRefinement(rec *Record, in insight.Insight) bool {
	curLen := float64(len(rec.Content))
	if curLen == 0 {
		return false
	}
	drift := (float64(len(in.Content)) - curLen) / curLen
	if drift < -t.cfg.RefinementBand || drift > t.cfg.RefinementBand {
		return false
	}
	newOwner := in.AssignedTo != "" && rec.AssignedTo == ""
	newDue := in.DueDate != "" && rec.DueDate == ""
	return newOwner || newDue
}

func (t *Tracker) store(sessionID string, in insight.Insight, vec []float32, chunkIndex int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storeLocked(sessionID, in, vec, chunkIndex)
}

func (t *Tracker) storeLocked(sessionID string, in insight.Insight, vec []float32, chunkIndex int) {
	now := time.Now()
	rec := &Record{
		ID:               in.ID,
		InsightType:      in.Type,
		OriginalContent:  in.Content,
		OriginalPriority: in.Priority,
		CreatedAt:        now,
		Content:          in.Content,
		Priority:         in.Priority,
		AssignedTo:       in.AssignedTo,
		DueDate:          in.DueDate,
		LastUpdated:      now,
		embedding:        vec,
		Versions: []Version{{
			Content:       in.Content,
			Priority:      in.Priority,
			Timestamp:     now,
			ChunkIndex:    chunkIndex,
			EvolutionType: New,
		}},
	}
	t.sessions[sessionID] = append(t.sessions[sessionID], rec)
}

func (t *Tracker) mergeLocked(rec *Record, in insight.Insight, vec []float32, chunkIndex int, typ Type, sim float64, reason string) Result {
	now := time.Now()

	switch typ {
	case Escalated:
		rec.Priority = in.Priority
		rec.Content = in.Content
	default:
		// Expansion and refinement keep the fuller content and the higher
		// of the two priorities.
		rec.Content = in.Content
		rec.Priority = rec.Priority.Max(in.Priority)
	}
	if in.AssignedTo != "" {
		rec.AssignedTo = in.AssignedTo
	}
	if in.DueDate != "" {
		rec.DueDate = in.DueDate
	}
	rec.LastUpdated = now
	rec.EvolutionCount++
	if len(vec) > 0 {
		rec.embedding = vec
	}
	rec.Versions = append(rec.Versions, Version{
		Content:       rec.Content,
		Priority:      rec.Priority,
		Timestamp:     now,
		ChunkIndex:    chunkIndex,
		EvolutionType: typ,
	})

	return Result{
		IsEvolution: true,
		Type:        typ,
		OriginalID:  rec.ID,
		Similarity:  sim,
		Reason:      reason,
		Merged: &Merged{
			ID:            rec.ID,
			InsightType:   rec.InsightType,
			Content:       rec.Content,
			Priority:      rec.Priority,
			AssignedTo:    rec.AssignedTo,
			DueDate:       rec.DueDate,
			EvolutionType: typ,
			EvolutionNote: fmt.Sprintf("updated %d times", rec.EvolutionCount),
		},
	}
}

// Records returns a copy of the session's tracked records (for summaries and tests).
func (t *Tracker) Records(sessionID string) []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	recs := t.sessions[sessionID]
	out := make([]*Record, len(recs))
	copy(out, recs)
	return out
}

// CleanupSession removes all evolution state for a session. Idempotent.
func (t *Tracker) CleanupSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, sessionID)
}
