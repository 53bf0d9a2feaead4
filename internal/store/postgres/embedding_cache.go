package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// EmbeddingCache stores vectors in a pgvector column keyed by cache key.
type EmbeddingCache struct {
	pool *pgxpool.Pool
}

// NewEmbeddingCache enables the vector extension and creates the cache table.
func NewEmbeddingCache(ctx context.Context, pool *pgxpool.Pool) (*EmbeddingCache, error) {
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return nil, fmt.Errorf("failed to create vector extension: %w", err)
	}
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS embedding_cache (
			key TEXT PRIMARY KEY,
			embedding vector NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache table: %w", err)
	}
	return &EmbeddingCache{pool: pool}, nil
}

func (c *EmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	var v pgvector.Vector
	err := c.pool.QueryRow(ctx, `SELECT embedding FROM embedding_cache WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v.Slice(), true, nil
}

func (c *EmbeddingCache) Set(ctx context.Context, key string, vec []float32) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO embedding_cache (key, embedding) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET embedding = EXCLUDED.embedding`,
		key, pgvector.NewVector(vec))
	return err
}
