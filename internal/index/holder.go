package index

import (
	"context"
	"sync/atomic"

	"schemarag/internal/domain"
)

// State is the lifecycle stage of a Holder.
type State int

const (
	Empty State = iota
	Building
	Ready
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Building:
		return "building"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Holder publishes the current index to concurrent readers. Rebuilds run off the
// read path and replace the index atomically; readers keep the previous one meanwhile.
type Holder struct {
	current  atomic.Pointer[Index]
	building atomic.Bool
}

// NewHolder returns an empty holder.
func NewHolder() *Holder { return &Holder{} }

// State reports Building while a rebuild runs, otherwise Ready or Empty.
func (h *Holder) State() State {
	if h.building.Load() {
		return Building
	}
	if h.current.Load() != nil {
		return Ready
	}
	return Empty
}

// Current returns the last published index.
func (h *Holder) Current() (*Index, error) {
	idx := h.current.Load()
	if idx == nil {
		return nil, ErrNotReady
	}
	return idx, nil
}

// Set publishes idx.
func (h *Holder) Set(idx *Index) { h.current.Store(idx) }

// Rebuild builds a new index and publishes it on success. Only one rebuild may run at a time.
func (h *Holder) Rebuild(ctx context.Context, summaries []domain.Summary, embedder domain.Embedder, opts Options) (*Index, *BuildReport, error) {
	if !h.building.CompareAndSwap(false, true) {
		return nil, nil, ErrBuildInProgress
	}
	defer h.building.Store(false)
	idx, report, err := Build(ctx, summaries, embedder, opts)
	if err != nil {
		return nil, report, err
	}
	h.current.Store(idx)
	return idx, report, nil
}
