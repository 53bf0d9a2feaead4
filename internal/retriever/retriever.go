package retriever

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"schemarag/internal/domain"
	"schemarag/internal/index"
)

var (
	// ErrInvalidTopK is returned when fewer than one result is requested.
	ErrInvalidTopK = errors.New("topK must be at least 1")
	// ErrModelMismatch is returned when the query embedder differs from the one that built the index.
	ErrModelMismatch = errors.New("query embedder model does not match index")
	// ErrQueryEmbedding wraps failures to embed the query.
	ErrQueryEmbedding = errors.New("failed to embed query")
	// ErrDimensionMismatch is returned when the query vector length differs from the index.
	// It is index.ErrDimensionMismatch, so one errors.Is check covers builds and queries.
	ErrDimensionMismatch = index.ErrDimensionMismatch
)

// FindClosest ranks indexed chunks by cosine similarity to query and returns at most topK.
// A nil embedder means the embedder the index was built with. Ties keep index insertion order.
func FindClosest(ctx context.Context, query string, topK int, idx *index.Index, embedder domain.Embedder) ([]domain.SimilarityResult, error) {
	if topK < 1 {
		return nil, ErrInvalidTopK
	}
	if idx == nil {
		return nil, index.ErrNotReady
	}
	if idx.Len() == 0 {
		return []domain.SimilarityResult{}, nil
	}
	if embedder == nil {
		embedder = idx.Embedder()
	}
	if embedder.Model() != idx.Model() {
		return nil, fmt.Errorf("%w: query %q, index %q", ErrModelMismatch, embedder.Model(), idx.Model())
	}
	q, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryEmbedding, err)
	}
	if len(q) != idx.Dimension() {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(q), idx.Dimension())
	}

	qNorm := norm(q)
	results := make([]domain.SimilarityResult, 0, idx.Len())
	idx.Each(func(id string, vec []float32) {
		results = append(results, domain.SimilarityResult{ChunkID: id, Score: cosine(q, qNorm, vec)})
	})
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has zero norm.
func Cosine(a, b []float32) float64 {
	return cosine(a, norm(a), b)
}

func cosine(q []float32, qNorm float64, v []float32) float64 {
	if qNorm == 0 {
		return 0
	}
	vNorm := norm(v)
	if vNorm == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	return dot / (qNorm * vNorm)
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}
