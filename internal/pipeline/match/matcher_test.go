package match

import (
	"context"
	"sync"
	"testing"

	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/provider"
)

// stubEmbedder returns preset vectors for known texts and a fresh orthogonal
// basis vector for anything else, so similarities are fully deterministic.
type stubEmbedder struct {
	mu   sync.Mutex
	vecs map[string][]float32
	next int
	fail bool
}

const stubDims = 64

func newStubEmbedder() *stubEmbedder {
	return &stubEmbedder{vecs: make(map[string][]float32), next: 2}
}

func (s *stubEmbedder) set(text string, vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	full := make([]float32, stubDims)
	copy(full, vec)
	s.vecs[text] = full
}

func (s *stubEmbedder) Embed(_ context.Context, text string, _ bool) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, apperrors.New(apperrors.CodeEmbeddingUnavailable, "stub failure")
	}
	if v, ok := s.vecs[text]; ok {
		out := make([]float32, len(v))
		copy(out, v)
		return out, nil
	}
	v := make([]float32, stubDims)
	v[s.next%stubDims] = 1
	s.next++
	s.vecs[text] = v
	out := make([]float32, len(v))
	copy(out, v)
	return out, nil
}

func (s *stubEmbedder) EmbedMany(ctx context.Context, texts []string, normalize bool) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := s.Embed(ctx, t, normalize)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func TestIndexExact(t *testing.T) {
	ix := NewIndex()
	ix.Put("fix the login bug", &Tracked{ID: "q1"})

	got, ok := ix.Exact("fix the login bug")
	if !ok || got.ID != "q1" {
		t.Errorf("Exact() = (%v, %v), want q1", got, ok)
	}

	if _, ok := ix.Exact("something else"); ok {
		t.Error("Exact() should miss on unknown text")
	}
}

func TestIndexOrderAndClear(t *testing.T) {
	ix := NewIndex()
	ix.Put("first", &Tracked{ID: "1"})
	ix.Put("second", &Tracked{ID: "2"})
	ix.Put("first", &Tracked{ID: "1b"}) // overwrite keeps position

	texts := ix.Texts()
	if len(texts) != 2 || texts[0] != "first" || texts[1] != "second" {
		t.Errorf("Texts() = %v, want [first second]", texts)
	}
	if ix.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ix.Len())
	}

	ix.Clear()
	if ix.Len() != 0 || len(ix.Texts()) != 0 {
		t.Error("Clear() should empty the index")
	}
	ix.Clear() // safe to repeat
}

func TestFindMatchIdenticalText(t *testing.T) {
	emb := newStubEmbedder()
	m := NewMatcher(emb)
	ix := NewIndex()
	ctx := context.Background()

	text := "should we delay the launch"
	vec, err := emb.Embed(ctx, text, true)
	if err != nil {
		t.Fatal(err)
	}
	m.Register(ix, text, "q1", vec)

	res, err := m.FindMatch(ctx, text, ix, 0.80)
	if err != nil {
		t.Fatalf("FindMatch() = %v, want nil", err)
	}
	if !res.Found || res.ID != "q1" {
		t.Errorf("result = %+v, want match on q1", res)
	}
	if res.Similarity < 0.999 {
		t.Errorf("Similarity = %v, want ~1 for identical text", res.Similarity)
	}
}

func TestFindMatchThresholdAsymmetry(t *testing.T) {
	emb := newStubEmbedder()
	m := NewMatcher(emb)
	ix := NewIndex()
	ctx := context.Background()

	// Paraphrase pair at similarity 0.75: below the 0.80 dedup bar but
	// above the 0.70 resolution bar.
	emb.set("original phrasing", []float32{1, 0})
	emb.set("paraphrased version", []float32{0.75, 0.66144})

	vec, _ := emb.Embed(ctx, "original phrasing", true)
	m.Register(ix, "original phrasing", "q1", vec)

	res, err := m.FindMatch(ctx, "paraphrased version", ix, 0.80)
	if err != nil {
		t.Fatal(err)
	}
	if res.Found {
		t.Errorf("paraphrase should miss the strict threshold, got %+v", res)
	}

	res, err = m.FindMatch(ctx, "paraphrased version", ix, 0.70)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Found || res.ID != "q1" {
		t.Errorf("paraphrase should clear the loose threshold, got %+v", res)
	}
}

func TestFindMatchPicksBest(t *testing.T) {
	emb := newStubEmbedder()
	m := NewMatcher(emb)
	ix := NewIndex()
	ctx := context.Background()

	emb.set("close", []float32{0.9, 0.43589})
	emb.set("closer", []float32{0.95, 0.31225})
	emb.set("query", []float32{1, 0})

	for _, text := range []string{"close", "closer"} {
		vec, _ := emb.Embed(ctx, text, true)
		m.Register(ix, text, text, vec)
	}

	res, err := m.FindMatch(ctx, "query", ix, 0.80)
	if err != nil {
		t.Fatal(err)
	}
	if res.ID != "closer" {
		t.Errorf("best match = %q, want closer", res.ID)
	}
}

func TestFindMatchEmptyIndex(t *testing.T) {
	emb := newStubEmbedder()
	m := NewMatcher(emb)

	res, err := m.FindMatch(context.Background(), "anything", NewIndex(), 0.80)
	if err != nil {
		t.Fatalf("FindMatch() = %v, want nil", err)
	}
	if res.Found {
		t.Error("empty index should never match")
	}
	if len(res.Vector) == 0 {
		t.Error("query vector should be returned for registration reuse")
	}
}

func TestFindMatchEmbeddingFailure(t *testing.T) {
	emb := newStubEmbedder()
	emb.fail = true
	m := NewMatcher(emb)

	_, err := m.FindMatch(context.Background(), "anything", NewIndex(), 0.80)
	if !apperrors.IsCode(err, apperrors.CodeEmbeddingUnavailable) {
		t.Errorf("FindMatch() = %v, want CodeEmbeddingUnavailable", err)
	}
}

func TestRegisterReusesVector(t *testing.T) {
	emb := newStubEmbedder()
	m := NewMatcher(emb)
	ix := NewIndex()

	vec := make([]float32, stubDims)
	vec[0] = 1
	m.Register(ix, "tracked text", "a1", vec)

	got, ok := ix.Exact("tracked text")
	if !ok {
		t.Fatal("registered text should be retrievable")
	}
	if got.ID != "a1" || provider.Cosine(got.Embedding, vec) < 0.999 {
		t.Errorf("tracked = %+v, want stored vector under a1", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}
