package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemarag/internal/domain"
	"schemarag/internal/index"
)

// tableEmbedder returns fixed vectors per text.
type tableEmbedder struct {
	model   string
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *tableEmbedder) Model() string { return e.model }

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0}, nil
}

func build(t *testing.T, emb *tableEmbedder, summaries ...domain.Summary) *index.Index {
	t.Helper()
	idx, _, err := index.Build(context.Background(), summaries, emb, index.Options{})
	require.NoError(t, err)
	return idx
}

func TestFindClosest(t *testing.T) {
	ctx := context.Background()
	emb := &tableEmbedder{model: "m", vectors: map[string][]float32{
		"s1":    {1, 0},
		"s2":    {0, 1},
		"s3":    {1, 1},
		"query": {1, 0},
	}}
	idx := build(t, emb,
		domain.Summary{ChunkID: "schema_chunk_001", Text: "s1"},
		domain.Summary{ChunkID: "schema_chunk_002", Text: "s2"},
		domain.Summary{ChunkID: "schema_chunk_003", Text: "s3"},
	)

	t.Run("Ranks by cosine similarity", func(t *testing.T) {
		res, err := FindClosest(ctx, "query", 3, idx, emb)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, "schema_chunk_001", res[0].ChunkID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
		assert.Equal(t, "schema_chunk_003", res[1].ChunkID)
		assert.InDelta(t, 0.7071, res[1].Score, 1e-4)
		assert.Equal(t, "schema_chunk_002", res[2].ChunkID)
		assert.InDelta(t, 0.0, res[2].Score, 1e-9)
	})

	t.Run("Truncates to topK and never exceeds the index", func(t *testing.T) {
		res, err := FindClosest(ctx, "query", 1, idx, emb)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, "schema_chunk_001", res[0].ChunkID)
		res, err = FindClosest(ctx, "query", 10, idx, emb)
		require.NoError(t, err)
		require.Len(t, res, 3)
		assert.Equal(t, []string{"schema_chunk_001", "schema_chunk_003", "schema_chunk_002"},
			[]string{res[0].ChunkID, res[1].ChunkID, res[2].ChunkID})
	})

	t.Run("Nil embedder uses the index embedder", func(t *testing.T) {
		res, err := FindClosest(ctx, "query", 1, idx, nil)
		require.NoError(t, err)
		assert.Equal(t, "schema_chunk_001", res[0].ChunkID)
	})

	t.Run("Is deterministic", func(t *testing.T) {
		a, err := FindClosest(ctx, "query", 3, idx, emb)
		require.NoError(t, err)
		b, err := FindClosest(ctx, "query", 3, idx, emb)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Invalid topK", func(t *testing.T) {
		_, err := FindClosest(ctx, "query", 0, idx, emb)
		assert.ErrorIs(t, err, ErrInvalidTopK)
	})

	t.Run("Nil index", func(t *testing.T) {
		_, err := FindClosest(ctx, "query", 1, nil, emb)
		assert.ErrorIs(t, err, index.ErrNotReady)
	})

	t.Run("Model mismatch", func(t *testing.T) {
		other := &tableEmbedder{model: "other"}
		_, err := FindClosest(ctx, "query", 1, idx, other)
		assert.ErrorIs(t, err, ErrModelMismatch)
		assert.Equal(t, 0, other.calls)
	})

	t.Run("Query embedding failure is not masked", func(t *testing.T) {
		boom := errors.New("timeout")
		failing := &tableEmbedder{model: "m", err: boom}
		res, err := FindClosest(ctx, "query", 1, idx, failing)
		assert.Nil(t, res)
		assert.ErrorIs(t, err, ErrQueryEmbedding)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		wide := &tableEmbedder{model: "m", vectors: map[string][]float32{"query": {1, 0, 0}}}
		_, err := FindClosest(ctx, "query", 1, idx, wide)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
		assert.ErrorIs(t, err, index.ErrDimensionMismatch)
	})

	t.Run("Zero query vector scores zero", func(t *testing.T) {
		res, err := FindClosest(ctx, "unknown", 3, idx, emb)
		require.NoError(t, err)
		for _, r := range res {
			assert.Equal(t, 0.0, r.Score)
		}
		assert.Equal(t, "schema_chunk_001", res[0].ChunkID)
	})
}

func TestFindClosestEmptyIndex(t *testing.T) {
	emb := &tableEmbedder{model: "m"}
	idx := build(t, emb)
	emb.calls = 0
	res, err := FindClosest(context.Background(), "anything", 3, idx, emb)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.NotNil(t, res)
	assert.Equal(t, 0, emb.calls)
}

func TestFindClosestTiesKeepInsertionOrder(t *testing.T) {
	emb := &tableEmbedder{model: "m", vectors: map[string][]float32{
		"same": {1, 1},
		"q":    {1, 1},
	}}
	idx := build(t, emb,
		domain.Summary{ChunkID: "b", Text: "same"},
		domain.Summary{ChunkID: "a", Text: "same"},
		domain.Summary{ChunkID: "c", Text: "same"},
	)
	res, err := FindClosest(context.Background(), "q", 3, idx, emb)
	require.NoError(t, err)
	ids := []string{res[0].ChunkID, res[1].ChunkID, res[2].ChunkID}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{2, 0}, []float32{5, 0}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
}
