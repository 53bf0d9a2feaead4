package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"schemarag/internal/domain"
	"schemarag/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_runs (
	run_id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	chunk_count INTEGER NOT NULL,
	max_size INTEGER NOT NULL,
	schema_summary TEXT NOT NULL DEFAULT ''
);
ALTER TABLE schema_runs ADD COLUMN IF NOT EXISTS schema_summary TEXT NOT NULL DEFAULT '';
CREATE TABLE IF NOT EXISTS schema_chunks (
	id TEXT PRIMARY KEY,
	chunk_index INTEGER NOT NULL,
	document JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS chunk_summaries (
	chunk_id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	summary TEXT NOT NULL
);`

// Store keeps chunks as jsonb documents and summaries as ordered rows.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.ChunkStore = (*Store)(nil)

// New connects to Postgres and creates the tables.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	s := NewWithPool(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool. Call Migrate before use.
func NewWithPool(pool *pgxpool.Pool) *Store { return &Store{pool: pool} }

// Pool exposes the connection pool, e.g. to share it with an EmbeddingCache.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Migrate creates missing tables.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

func (s *Store) SaveChunks(ctx context.Context, m store.Manifest, chunks []domain.Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{"DELETE FROM chunk_summaries", "DELETE FROM schema_chunks", "DELETE FROM schema_runs"} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear previous run: %w", err)
		}
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		doc, err := json.Marshal(domain.ChunkDocument{Nodes: c.Nodes, Relationships: c.Relationships})
		if err != nil {
			return err
		}
		batch.Queue(`INSERT INTO schema_chunks (id, chunk_index, document) VALUES ($1, $2, $3)`, c.ID, c.Index, doc)
	}
	m.ChunkCount = len(chunks)
	batch.Queue(`INSERT INTO schema_runs (run_id, created_at, chunk_count, max_size, schema_summary) VALUES ($1, $2, $3, $4, $5)`,
		m.RunID, m.CreatedAt, m.ChunkCount, m.MaxSize, m.SchemaSummary)
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) Manifest(ctx context.Context) (store.Manifest, error) {
	var m store.Manifest
	err := s.pool.QueryRow(ctx, `SELECT run_id, created_at, chunk_count, max_size, schema_summary FROM schema_runs LIMIT 1`).
		Scan(&m.RunID, &m.CreatedAt, &m.ChunkCount, &m.MaxSize, &m.SchemaSummary)
	if errors.Is(err, pgx.ErrNoRows) {
		return m, store.ErrNotFound
	}
	return m, err
}

func (s *Store) LoadChunks(ctx context.Context) ([]domain.ChunkRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, chunk_index, document FROM schema_chunks ORDER BY chunk_index, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var records []domain.ChunkRecord
	for rows.Next() {
		var (
			id  string
			idx int
			doc []byte
		)
		if err := rows.Scan(&id, &idx, &doc); err != nil {
			return nil, err
		}
		c, err := decodeChunk(doc)
		c.ID, c.Index = id, idx
		records = append(records, domain.ChunkRecord{Chunk: c, Err: err})
	}
	return records, rows.Err()
}

func (s *Store) Chunk(ctx context.Context, id string) (domain.Chunk, error) {
	var (
		idx int
		doc []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT chunk_index, document FROM schema_chunks WHERE id = $1`, id).Scan(&idx, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Chunk{}, err
	}
	c, err := decodeChunk(doc)
	if err != nil {
		return domain.Chunk{}, err
	}
	c.ID, c.Index = id, idx
	return c, nil
}

func (s *Store) SaveSummaries(ctx context.Context, summaries []domain.Summary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM chunk_summaries"); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for i, sm := range summaries {
		batch.Queue(`INSERT INTO chunk_summaries (chunk_id, position, summary) VALUES ($1, $2, $3)`, sm.ChunkID, i, sm.Text)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert summaries: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) LoadSummaries(ctx context.Context) ([]domain.Summary, error) {
	rows, err := s.pool.Query(ctx, `SELECT chunk_id, summary FROM chunk_summaries ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Summary, error) {
		var sm domain.Summary
		err := row.Scan(&sm.ChunkID, &sm.Text)
		return sm, err
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		var runs int
		if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM schema_runs`).Scan(&runs); err == nil && runs == 0 {
			return nil, fmt.Errorf("summaries: %w", store.ErrNotFound)
		}
	}
	return out, nil
}

func (s *Store) Summary(ctx context.Context, id string) (domain.Summary, error) {
	sm := domain.Summary{ChunkID: id}
	err := s.pool.QueryRow(ctx, `SELECT summary FROM chunk_summaries WHERE chunk_id = $1`, id).Scan(&sm.Text)
	if errors.Is(err, pgx.ErrNoRows) {
		return sm, fmt.Errorf("summary %s: %w", id, store.ErrNotFound)
	}
	return sm, err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func decodeChunk(doc []byte) (domain.Chunk, error) {
	var raw domain.RawDocument
	if err := json.Unmarshal(doc, &raw); err != nil {
		return domain.Chunk{}, err
	}
	nodes, rels := raw.Normalize()
	return domain.Chunk{Nodes: nodes, Relationships: rels}, nil
}
