package session

import (
	"context"
	"sort"
	"testing"

	"github.com/meetwise/streamcore/internal/config"
	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/pipeline/evolve"
)

func newTestRegistry() *Registry {
	emb := newStubEmbedder()
	return NewRegistry(Deps{
		Cfg:       config.Default(),
		Embedder:  emb,
		Extractor: &scriptedExtractor{},
		Tracker:   evolve.NewTracker(emb, evolve.Config{}),
	})
}

func TestRegistryCreateAndGet(t *testing.T) {
	r := newTestRegistry()

	orch, err := r.Create("s1")
	if err != nil {
		t.Fatalf("Create() = %v", err)
	}
	if orch.ID() != "s1" {
		t.Errorf("ID = %q, want s1", orch.ID())
	}

	got, ok := r.Get("s1")
	if !ok || got != orch {
		t.Error("Get should return the created session")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get should miss unknown ids")
	}
}

func TestRegistryDuplicateCreate(t *testing.T) {
	r := newTestRegistry()

	if _, err := r.Create("s1"); err != nil {
		t.Fatal(err)
	}
	_, err := r.Create("s1")
	if !apperrors.IsCode(err, apperrors.CodeSessionExists) {
		t.Errorf("duplicate Create() = %v, want CodeSessionExists", err)
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newTestRegistry()

	orch, _ := r.Create("s1")
	orch.End(context.Background())
	r.Remove("s1")

	if _, ok := r.Get("s1"); ok {
		t.Error("removed session should not be retrievable")
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	r.Remove("s1") // idempotent
}

func TestRegistrySessionsIsolated(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	a, _ := r.Create("s1")
	b, _ := r.Create("s2")

	a.End(ctx)

	// Ending one session leaves the other fully operational.
	if err := b.ProcessChunk(ctx, "We decided to go with the phased rollout plan", true); err != nil {
		t.Errorf("sibling session broken after End: %v", err)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2 until Remove", r.Len())
	}
}

func TestRegistryIDs(t *testing.T) {
	r := newTestRegistry()
	_, _ = r.Create("s1")
	_, _ = r.Create("s2")

	ids := r.IDs()
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "s1" || ids[1] != "s2" {
		t.Errorf("IDs() = %v, want [s1 s2]", ids)
	}
}
