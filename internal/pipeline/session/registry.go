package session

import (
	"github.com/meetwise/streamcore/internal/config"
	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/pipeline/batch"
	"github.com/meetwise/streamcore/internal/pipeline/evolve"
	"github.com/meetwise/streamcore/internal/pipeline/router"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/syncx"
)

// Deps are the process-wide collaborators shared by all sessions.
type Deps struct {
	Cfg       *config.Config
	Embedder  provider.Embedder
	Extractor provider.Extractor
	Validator provider.Validator // optional
	Tracker   *evolve.Tracker
}

// Registry owns the live sessions for one process. An explicit object, not
// module state, so tests can run many registries side by side.
type Registry struct {
	deps     Deps
	sessions *syncx.RWGuard[map[string]*Orchestrator]
}

// NewRegistry creates an empty session registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		deps:     deps,
		sessions: syncx.NewGuard(make(map[string]*Orchestrator)),
	}
}

// Create starts a new session. Fails if the id is already live.
func (r *Registry) Create(id string) (*Orchestrator, error) {
	cfg := r.deps.Cfg
	orch := New(id, Options{
		Policy: batch.FromConfig(cfg),
		Router: router.Config{
			DuplicateThreshold: cfg.DuplicateThreshold,
			ResolveThreshold:   cfg.ResolveThreshold,
		},
		Embedder:    r.deps.Embedder,
		Extractor:   r.deps.Extractor,
		Validator:   r.deps.Validator,
		Tracker:     r.deps.Tracker,
		ActiveLimit: cfg.ActiveContextLimit,
		EventBuffer: cfg.EventBuffer,
	})

	err := r.sessions.Update(func(m *map[string]*Orchestrator) any {
		if _, exists := (*m)[id]; exists {
			return apperrors.Newf(apperrors.CodeSessionExists, "session %s already exists", id)
		}
		(*m)[id] = orch
		return nil
	})
	if err != nil {
		return nil, err.(error)
	}
	return orch, nil
}

// Get returns a live session by id.
func (r *Registry) Get(id string) (*Orchestrator, bool) {
	got := r.sessions.Read(func(m map[string]*Orchestrator) any {
		return m[id]
	})
	orch, _ := got.(*Orchestrator)
	return orch, orch != nil
}

// Remove drops a session from the registry. Idempotent; the caller is
// responsible for calling End first.
func (r *Registry) Remove(id string) {
	r.sessions.Write(func(m *map[string]*Orchestrator) {
		delete(*m, id)
	})
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	return r.sessions.Read(func(m map[string]*Orchestrator) any {
		return len(m)
	}).(int)
}

// IDs returns the ids of all live sessions.
func (r *Registry) IDs() []string {
	return r.sessions.Read(func(m map[string]*Orchestrator) any {
		ids := make([]string, 0, len(m))
		for id := range m {
			ids = append(ids, id)
		}
		return ids
	}).([]string)
}
