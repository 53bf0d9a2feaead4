package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemarag/internal/domain"
)

// lenEmbedder maps text to a 2-d vector derived from its length.
type lenEmbedder struct {
	model string
	fail  map[string]bool
	calls atomic.Int32
	delay time.Duration
}

func (e *lenEmbedder) Model() string { return e.model }

func (e *lenEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.fail[text] {
		return nil, errors.New("embed failed")
	}
	return []float32{float32(len(text)), 1}, nil
}

type jaggedEmbedder struct{}

func (jaggedEmbedder) Model() string { return "jagged" }

func (jaggedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return make([]float32, len(text)), nil
}

type fitter struct {
	lenEmbedder
	corpus []string
}

func (f *fitter) Fit(corpus []string) (domain.Embedder, error) {
	f.corpus = corpus
	return &lenEmbedder{model: "fitted"}, nil
}

func summaries(texts ...string) []domain.Summary {
	out := make([]domain.Summary, len(texts))
	for i, t := range texts {
		out[i] = domain.Summary{ChunkID: "schema_chunk_00" + string(rune('1'+i)), Text: t}
	}
	return out
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Indexes every summary in input order", func(t *testing.T) {
		emb := &lenEmbedder{model: "m"}
		idx, rep, err := Build(ctx, summaries("a", "bb", "ccc", "dddd"), emb, Options{Workers: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"schema_chunk_001", "schema_chunk_002", "schema_chunk_003", "schema_chunk_004"}, idx.IDs())
		assert.Equal(t, 4, idx.Len())
		assert.Equal(t, 2, idx.Dimension())
		assert.Equal(t, "m", idx.Model())
		assert.Same(t, emb, idx.Embedder())
		assert.Equal(t, 4, rep.Indexed)
		assert.Empty(t, rep.Failures)
		v, ok := idx.Vector("schema_chunk_003")
		require.True(t, ok)
		assert.Equal(t, []float32{3, 1}, v)
	})

	t.Run("Deterministic across worker counts", func(t *testing.T) {
		in := summaries("a", "bb", "ccc", "dddd", "eeeee")
		a, _, err := Build(ctx, in, &lenEmbedder{model: "m"}, Options{Workers: 1})
		require.NoError(t, err)
		b, _, err := Build(ctx, in, &lenEmbedder{model: "m"}, Options{Workers: 5})
		require.NoError(t, err)
		assert.Equal(t, a.IDs(), b.IDs())
		a.Each(func(id string, vec []float32) {
			other, _ := b.Vector(id)
			assert.Equal(t, vec, other)
		})
	})

	t.Run("Empty input builds an empty index", func(t *testing.T) {
		emb := &lenEmbedder{model: "m"}
		idx, rep, err := Build(ctx, nil, emb, Options{})
		require.NoError(t, err)
		assert.Equal(t, 0, idx.Len())
		assert.Equal(t, 0, rep.Indexed)
		assert.EqualValues(t, 0, emb.calls.Load())
	})

	t.Run("Failures are isolated", func(t *testing.T) {
		emb := &lenEmbedder{model: "m", fail: map[string]bool{"bb": true}}
		var mu sync.Mutex
		var seen []string
		idx, rep, err := Build(ctx, summaries("a", "bb", "ccc"), emb, Options{Workers: 2, OnEmbedded: func(id string, _ error) {
			mu.Lock()
			seen = append(seen, id)
			mu.Unlock()
		}})
		require.NoError(t, err)
		assert.Equal(t, []string{"schema_chunk_001", "schema_chunk_003"}, idx.IDs())
		require.Len(t, rep.Failures, 1)
		assert.Equal(t, "schema_chunk_002", rep.Failures[0].ChunkID)
		assert.Len(t, seen, 3)
	})

	t.Run("FailFast aborts", func(t *testing.T) {
		emb := &lenEmbedder{model: "m", fail: map[string]bool{"bb": true}}
		_, _, err := Build(ctx, summaries("a", "bb", "ccc"), emb, Options{FailFast: true})
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "schema_chunk_002"))
	})

	t.Run("Dimension mismatch", func(t *testing.T) {
		_, _, err := Build(ctx, summaries("a", "bb"), jaggedEmbedder{}, Options{})
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("Duplicate ids", func(t *testing.T) {
		in := []domain.Summary{{ChunkID: "x", Text: "a"}, {ChunkID: "x", Text: "b"}}
		_, _, err := Build(ctx, in, &lenEmbedder{model: "m"}, Options{})
		assert.ErrorIs(t, err, ErrDuplicateID)
	})

	t.Run("Nil embedder", func(t *testing.T) {
		_, _, err := Build(ctx, summaries("a"), nil, Options{})
		assert.ErrorIs(t, err, ErrNoEmbedder)
	})

	t.Run("Corpus fitters are fitted on the summaries", func(t *testing.T) {
		f := &fitter{lenEmbedder: lenEmbedder{model: "raw"}}
		idx, _, err := Build(ctx, summaries("a", "bb"), f, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "bb"}, f.corpus)
		assert.Equal(t, "fitted", idx.Model())
		assert.Equal(t, "fitted", idx.Embedder().Model())
	})

	t.Run("Canceled context", func(t *testing.T) {
		c, cancel := context.WithCancel(ctx)
		cancel()
		_, _, err := Build(c, summaries("a", "bb"), &lenEmbedder{model: "m"}, Options{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestHolder(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts empty", func(t *testing.T) {
		h := NewHolder()
		assert.Equal(t, Empty, h.State())
		_, err := h.Current()
		assert.ErrorIs(t, err, ErrNotReady)
	})

	t.Run("Rebuild publishes", func(t *testing.T) {
		h := NewHolder()
		idx, _, err := h.Rebuild(ctx, summaries("a"), &lenEmbedder{model: "m"}, Options{})
		require.NoError(t, err)
		assert.Equal(t, Ready, h.State())
		cur, err := h.Current()
		require.NoError(t, err)
		assert.Same(t, idx, cur)
	})

	t.Run("Concurrent rebuild is rejected and readers keep the old index", func(t *testing.T) {
		h := NewHolder()
		old, _, err := h.Rebuild(ctx, summaries("a"), &lenEmbedder{model: "m"}, Options{})
		require.NoError(t, err)

		slow := &lenEmbedder{model: "m", delay: 200 * time.Millisecond}
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _, _ = h.Rebuild(ctx, summaries("a", "bb"), slow, Options{})
		}()
		require.Eventually(t, func() bool { return h.State() == Building }, time.Second, time.Millisecond)

		_, _, err = h.Rebuild(ctx, summaries("a"), &lenEmbedder{model: "m"}, Options{})
		assert.ErrorIs(t, err, ErrBuildInProgress)
		cur, err := h.Current()
		require.NoError(t, err)
		assert.Same(t, old, cur)

		<-done
		cur, err = h.Current()
		require.NoError(t, err)
		assert.Equal(t, 2, cur.Len())
		assert.Equal(t, Ready, h.State())
	})

	t.Run("Failed rebuild keeps the previous index", func(t *testing.T) {
		h := NewHolder()
		old, _, err := h.Rebuild(ctx, summaries("a"), &lenEmbedder{model: "m"}, Options{})
		require.NoError(t, err)
		_, _, err = h.Rebuild(ctx, summaries("a", "bb"), jaggedEmbedder{}, Options{})
		require.Error(t, err)
		cur, _ := h.Current()
		assert.Same(t, old, cur)
	})

	t.Run("State strings", func(t *testing.T) {
		assert.Equal(t, "empty", Empty.String())
		assert.Equal(t, "building", Building.String())
		assert.Equal(t, "ready", Ready.String())
	})
}
