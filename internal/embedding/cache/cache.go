package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"

	"schemarag/internal/domain"
)

// Backend persists vectors by key. Get reports a miss with ok=false and a nil error.
type Backend interface {
	Get(ctx context.Context, key string) (vec []float32, ok bool, err error)
	Set(ctx context.Context, key string, vec []float32) error
}

// Embedder memoizes an inner embedder. Backend failures degrade to a direct call.
type Embedder struct {
	inner   domain.Embedder
	backend Backend
	logger  *slog.Logger
}

var _ domain.Embedder = (*Embedder)(nil)

// New wraps inner with backend. A nil logger means slog.Default().
func New(inner domain.Embedder, backend Backend, logger *slog.Logger) *Embedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Embedder{inner: inner, backend: backend, logger: logger}
}

// Model returns the inner model identity; caching does not change the vector space.
func (e *Embedder) Model() string { return e.inner.Model() }

// Key derives the cache key of text under model.
func Key(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Embed returns a cached vector or computes and stores it.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := Key(e.inner.Model(), text)
	if vec, ok, err := e.backend.Get(ctx, key); err != nil {
		e.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
	} else if ok {
		return vec, nil
	}
	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := e.backend.Set(ctx, key, vec); err != nil {
		e.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
	return vec, nil
}
