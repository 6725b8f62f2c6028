// Package match implements semantic deduplication over streaming text:
// cached normalized embeddings compared by cosine similarity against two
// threshold regimes (strict for new-item dedup, loose for reference
// resolution).
package match

import (
	"context"
	"time"

	apperrors "github.com/meetwise/streamcore/internal/errors"
	"github.com/meetwise/streamcore/internal/provider"
	"github.com/meetwise/streamcore/internal/trace"
)

// Tracked is an item with server identity and cached embedding, keyed in an
// Index by its original source text.
type Tracked struct {
	ID        string
	Embedding []float32
	CreatedAt time.Time
}

// Index holds one session's tracked items of a single kind. Not safe for
// concurrent use; each session's processing path is the sole owner.
type Index struct {
	items map[string]*Tracked
	order []string
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{items: make(map[string]*Tracked)}
}

// Exact returns the tracked item stored under exactly this text.
func (ix *Index) Exact(text string) (*Tracked, bool) {
	t, ok := ix.items[text]
	return t, ok
}

// Put stores a tracked item under its source text.
func (ix *Index) Put(text string, t *Tracked) {
	if _, exists := ix.items[text]; !exists {
		ix.order = append(ix.order, text)
	}
	ix.items[text] = t
}

// Len returns the number of tracked items.
func (ix *Index) Len() int { return len(ix.items) }

// Texts returns tracked source texts in insertion order.
func (ix *Index) Texts() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Clear empties the index. Safe to call repeatedly.
func (ix *Index) Clear() {
	ix.items = make(map[string]*Tracked)
	ix.order = nil
}

// Result reports the outcome of a similarity search. Vector carries the query
// embedding so callers can register a new item without re-embedding.
type Result struct {
	Found      bool
	ID         string
	Similarity float64
	Vector     []float32
}

// Matcher finds the most similar previously tracked item for a new text.
type Matcher struct {
	embedder provider.Embedder
}

// NewMatcher creates a matcher over the shared embedder.
func NewMatcher(embedder provider.Embedder) *Matcher {
	return &Matcher{embedder: embedder}
}

// FindMatch embeds text and scans the index for the best match at or above
// threshold. An embedding failure returns the error; callers fail open and
// treat the item as new. The best below-threshold similarity is still
// reported for diagnostics.
func (m *Matcher) FindMatch(ctx context.Context, text string, ix *Index, threshold float64) (Result, error) {
	vec, err := m.embedder.Embed(ctx, text, true)
	if err != nil {
		return Result{}, err
	}
	if len(vec) == 0 {
		return Result{}, apperrors.New(apperrors.CodeEmbeddingUnavailable, "empty embedding")
	}

	best := Result{Vector: vec, Similarity: -1}
	for _, tracked := range ix.items {
		if len(tracked.Embedding) == 0 {
			continue
		}
		sim := provider.Cosine(vec, tracked.Embedding)
		if sim > best.Similarity {
			best.Similarity = sim
			best.ID = tracked.ID
		}
	}

	if best.Similarity >= threshold {
		best.Found = true
		return best, nil
	}

	log := trace.Logger(ctx)
	log.Debug("no semantic match", "best_similarity", best.Similarity, "threshold", threshold, "candidates", ix.Len())
	return Result{Found: false, Similarity: best.Similarity, Vector: vec}, nil
}

// Register stores a genuinely new text with its id and already-computed
// normalized vector.
func (m *Matcher) Register(ix *Index, text, id string, vec []float32) {
	ix.Put(text, &Tracked{ID: id, Embedding: vec, CreatedAt: time.Now()})
}
