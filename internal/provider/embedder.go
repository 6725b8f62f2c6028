// Package provider wraps the external model services the pipeline consumes:
// the shared embedding model and the insight-extraction LLM call.
package provider

import (
	"context"
	"math"
	"sync"
)

// Embedder produces vector embeddings for text. Implementations must be safe
// for concurrent use; sessions share one handle.
type Embedder interface {
	Embed(ctx context.Context, text string, normalize bool) ([]float32, error)
	// EmbedMany is a batching optimization; semantics match Embed per element.
	EmbedMany(ctx context.Context, texts []string, normalize bool) ([][]float32, error)
}

// Normalize scales v to unit length in place. Returns false for a zero
// vector, which callers must treat as an embedding failure.
func Normalize(v []float32) bool {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return false
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return true
}

// Cosine returns the cosine similarity of two normalized vectors (plain dot
// product). Mismatched lengths yield 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

var (
	sharedOnce sync.Once
	sharedEmb  Embedder
)

// Shared returns the process-wide embedder, constructing it at most once.
// Concurrent first-use from multiple sessions is serialized here.
func Shared(build func() Embedder) Embedder {
	sharedOnce.Do(func() {
		sharedEmb = build()
	})
	return sharedEmb
}
