package embedding

import (
	"context"
	"time"

	"schemarag/internal/domain"
)

type timeoutEmbedder struct {
	inner   domain.Embedder
	timeout time.Duration
}

// WithTimeout bounds every Embed call of inner. A non-positive timeout returns inner unchanged.
func WithTimeout(inner domain.Embedder, timeout time.Duration) domain.Embedder {
	if timeout <= 0 {
		return inner
	}
	return &timeoutEmbedder{inner: inner, timeout: timeout}
}

func (t *timeoutEmbedder) Model() string { return t.inner.Model() }

func (t *timeoutEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Embed(ctx, text)
}
