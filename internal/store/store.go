package store

import (
	"context"
	"errors"
	"time"

	"schemarag/internal/domain"
)

// ErrNotFound is returned when a chunk or summary id is unknown.
var ErrNotFound = errors.New("not found")

// Manifest describes the extraction run that produced the stored chunks.
type Manifest struct {
	RunID      string    `json:"run_id"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkCount int       `json:"chunk_count"`
	MaxSize    int       `json:"max_size"`
	// SchemaSummary summarizes the full graph, including relationships between chunks.
	SchemaSummary string `json:"schema_summary,omitempty"`
}

// ChunkStore persists chunks and their summaries, addressable by chunk id.
// Loads return chunks in index order and summaries in the order they were saved.
type ChunkStore interface {
	// SaveChunks replaces all stored chunks and summaries with chunks.
	SaveChunks(ctx context.Context, m Manifest, chunks []domain.Chunk) error
	Manifest(ctx context.Context) (Manifest, error)
	// LoadChunks returns every stored chunk. Undecodable documents are reported per record.
	LoadChunks(ctx context.Context) ([]domain.ChunkRecord, error)
	Chunk(ctx context.Context, id string) (domain.Chunk, error)
	SaveSummaries(ctx context.Context, summaries []domain.Summary) error
	LoadSummaries(ctx context.Context) ([]domain.Summary, error)
	Summary(ctx context.Context, id string) (domain.Summary, error)
	Close() error
}
