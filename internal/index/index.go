package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"schemarag/internal/domain"
)

var (
	// ErrDimensionMismatch is returned when vectors of one build differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrDuplicateID is returned when two summaries share a chunk id.
	ErrDuplicateID = errors.New("duplicate chunk id")
	// ErrNotReady is returned when no index has been built yet.
	ErrNotReady = errors.New("index not ready")
	// ErrBuildInProgress is returned when a rebuild is already running.
	ErrBuildInProgress = errors.New("index build in progress")
	// ErrNoEmbedder is returned when building without an embedder.
	ErrNoEmbedder = errors.New("no embedder configured")
)

// Index is an immutable mapping from chunk id to embedding vector.
// It remembers the embedder that produced it and the order ids were added in.
type Index struct {
	embedder  domain.Embedder
	model     string
	dimension int
	ids       []string
	vectors   map[string][]float32
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int { return len(i.ids) }

// Model returns the model identity of the vectors.
func (i *Index) Model() string { return i.model }

// Dimension returns the shared vector length, zero for an empty index.
func (i *Index) Dimension() int { return i.dimension }

// Embedder returns the embedder queries against this index must use.
func (i *Index) Embedder() domain.Embedder { return i.embedder }

// IDs returns chunk ids in insertion order.
func (i *Index) IDs() []string {
	out := make([]string, len(i.ids))
	copy(out, i.ids)
	return out
}

// Vector returns the vector stored for id.
func (i *Index) Vector(id string) ([]float32, bool) {
	v, ok := i.vectors[id]
	return v, ok
}

// Each calls fn for every entry in insertion order. fn must not modify vec.
func (i *Index) Each(fn func(id string, vec []float32)) {
	for _, id := range i.ids {
		fn(id, i.vectors[id])
	}
}

// Failure records a summary that could not be embedded.
type Failure struct {
	ChunkID string
	Err     error
}

// BuildReport describes what a build skipped.
type BuildReport struct {
	Indexed  int
	Failures []Failure
}

// Options tunes Build.
type Options struct {
	// Workers bounds concurrent Embed calls; values below 1 mean 1.
	Workers int
	// FailFast aborts the build on the first embedding failure.
	FailFast bool
	Logger   *slog.Logger
	// OnEmbedded, if set, is called once per summary, from worker goroutines.
	OnEmbedded func(id string, err error)
}

// Build embeds every summary and returns the resulting index.
// If embedder implements domain.CorpusFitter it is first fitted on the summary texts
// and the fitted embedder is attached to the index.
func Build(ctx context.Context, summaries []domain.Summary, embedder domain.Embedder, opts Options) (*Index, *BuildReport, error) {
	if embedder == nil {
		return nil, nil, ErrNoEmbedder
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seen := make(map[string]struct{}, len(summaries))
	for _, s := range summaries {
		if _, dup := seen[s.ChunkID]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.ChunkID)
		}
		seen[s.ChunkID] = struct{}{}
	}

	if fitter, ok := embedder.(domain.CorpusFitter); ok && len(summaries) > 0 {
		corpus := make([]string, len(summaries))
		for i, s := range summaries {
			corpus[i] = s.Text
		}
		fitted, err := fitter.Fit(corpus)
		if err != nil {
			return nil, nil, fmt.Errorf("fit embedder: %w", err)
		}
		embedder = fitted
	}

	vectors := make([][]float32, len(summaries))
	errs := make([]error, len(summaries))
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	for i, s := range summaries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := embedder.Embed(gctx, s.Text)
			if opts.OnEmbedded != nil {
				mu.Lock()
				opts.OnEmbedded(s.ChunkID, err)
				mu.Unlock()
			}
			if err != nil {
				if opts.FailFast || ctx.Err() != nil {
					return fmt.Errorf("embed %s: %w", s.ChunkID, err)
				}
				errs[i] = err
				return nil
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	idx := &Index{
		embedder: embedder,
		model:    embedder.Model(),
		ids:      make([]string, 0, len(summaries)),
		vectors:  make(map[string][]float32, len(summaries)),
	}
	report := &BuildReport{}
	for i, s := range summaries {
		if errs[i] != nil {
			report.Failures = append(report.Failures, Failure{ChunkID: s.ChunkID, Err: errs[i]})
			logger.Warn("failed to embed summary", slog.String("chunk_id", s.ChunkID), slog.String("error", errs[i].Error()))
			continue
		}
		vec := vectors[i]
		if idx.dimension == 0 && len(idx.ids) == 0 {
			idx.dimension = len(vec)
		} else if len(vec) != idx.dimension {
			return nil, nil, fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, s.ChunkID, len(vec), idx.dimension)
		}
		idx.ids = append(idx.ids, s.ChunkID)
		idx.vectors[s.ChunkID] = vec
	}
	report.Indexed = len(idx.ids)
	logger.Info("index built",
		slog.Int("indexed", report.Indexed),
		slog.Int("failed", len(report.Failures)),
		slog.String("model", idx.model),
		slog.Int("dimension", idx.dimension))
	return idx, report, nil
}
