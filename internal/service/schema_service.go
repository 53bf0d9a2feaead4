package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"schemarag/internal/chunker"
	"schemarag/internal/domain"
	"schemarag/internal/index"
	"schemarag/internal/retriever"
	"schemarag/internal/store"
	"schemarag/internal/summarizer"
)

// ErrNoSource is returned by Extract when the service has no schema source.
var ErrNoSource = errors.New("no schema source configured")

// Config wires a SchemaService.
type Config struct {
	Source   domain.SchemaSource
	Chunker  *chunker.SchemaChunker
	Store    store.ChunkStore
	Embedder domain.Embedder
	Index    index.Options
	Logger   *slog.Logger
}

// SchemaService runs the extract, summarize, index and query stages over a chunk store.
type SchemaService struct {
	source   domain.SchemaSource
	chunker  *chunker.SchemaChunker
	store    store.ChunkStore
	embedder domain.Embedder
	opts     index.Options
	holder   *index.Holder
	logger   *slog.Logger

	newRunID func() string
	now      func() time.Time
}

// New creates a service. A nil Chunker uses the default chunk size.
func New(cfg Config) (*SchemaService, error) {
	if cfg.Store == nil {
		return nil, errors.New("service: store is required")
	}
	if cfg.Chunker == nil {
		c, err := chunker.NewSchemaChunker(chunker.DefaultMaxSize)
		if err != nil {
			return nil, err
		}
		cfg.Chunker = c
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Index
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &SchemaService{
		source:   cfg.Source,
		chunker:  cfg.Chunker,
		store:    cfg.Store,
		embedder: cfg.Embedder,
		opts:     opts,
		holder:   index.NewHolder(),
		logger:   logger,
		newRunID: uuid.NewString,
		now:      time.Now,
	}, nil
}

// Holder exposes the published index.
func (s *SchemaService) Holder() *index.Holder { return s.holder }

// Manifest describes the last persisted extraction run.
func (s *SchemaService) Manifest(ctx context.Context) (store.Manifest, error) {
	return s.store.Manifest(ctx)
}

// ExtractResult describes one extraction run.
type ExtractResult struct {
	RunID         string
	Nodes         int
	Relationships int
	Chunks        []domain.Chunk
}

// Extract reads the schema graph, chunks it and persists the chunks, replacing
// any previous run. Source failures abort the run before anything is written.
func (s *SchemaService) Extract(ctx context.Context) (*ExtractResult, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	s.logger.Info("extracting nodes")
	nodes, err := s.source.Nodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract nodes: %w", err)
	}
	s.logger.Info("extracting relationships", slog.Int("nodes", len(nodes)))
	rels, err := s.source.Relationships(ctx)
	if err != nil {
		return nil, fmt.Errorf("extract relationships: %w", err)
	}

	chunks, err := s.chunker.Chunk(nodes, rels)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		s.logger.Info("chunked schema", slog.String("chunk_id", c.ID), slog.String("brief", summarizer.Brief(c)))
	}
	m := store.Manifest{
		RunID:         s.newRunID(),
		CreatedAt:     s.now().UTC(),
		MaxSize:       s.chunker.MaxSize(),
		SchemaSummary: summarizer.Summarize(nodes, rels),
	}
	if err := s.store.SaveChunks(ctx, m, chunks); err != nil {
		return nil, fmt.Errorf("save chunks: %w", err)
	}
	s.logger.Info("extraction complete",
		slog.String("run_id", m.RunID),
		slog.Int("nodes", len(nodes)),
		slog.Int("relationships", len(rels)),
		slog.Int("chunks", len(chunks)))
	return &ExtractResult{RunID: m.RunID, Nodes: len(nodes), Relationships: len(rels), Chunks: chunks}, nil
}

// Summarize summarizes every stored chunk and persists the summaries in chunk order.
func (s *SchemaService) Summarize(ctx context.Context, onSummarized func(id string)) (*summarizer.BatchResult, error) {
	records, err := s.store.LoadChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	b := &summarizer.Batch{Logger: s.logger, OnSummarized: onSummarized}
	res, err := b.Run(ctx, records)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveSummaries(ctx, res.Summaries); err != nil {
		return nil, fmt.Errorf("save summaries: %w", err)
	}
	s.logger.Info("summaries saved", slog.Int("count", len(res.Summaries)), slog.Int("unreadable", len(res.Failed)))
	return res, nil
}

// BuildIndex embeds the stored summaries and publishes the new index.
// Error-marker summaries are left out so unreadable chunks are never retrieved.
func (s *SchemaService) BuildIndex(ctx context.Context, onEmbedded func(id string, err error)) (*index.BuildReport, error) {
	summaries, err := s.store.LoadSummaries(ctx)
	if err != nil {
		return nil, fmt.Errorf("load summaries: %w", err)
	}
	usable := make([]domain.Summary, 0, len(summaries))
	for _, sm := range summaries {
		if summarizer.IsErrorMarker(sm.Text) {
			s.logger.Warn("skipping unreadable chunk", slog.String("chunk_id", sm.ChunkID))
			continue
		}
		usable = append(usable, sm)
	}
	opts := s.opts
	opts.OnEmbedded = onEmbedded
	_, report, err := s.holder.Rebuild(ctx, usable, s.embedder, opts)
	if err != nil {
		return report, fmt.Errorf("build index: %w", err)
	}
	return report, nil
}

// Query ranks indexed chunks against query.
func (s *SchemaService) Query(ctx context.Context, query string, topK int) ([]domain.SimilarityResult, error) {
	idx, err := s.holder.Current()
	if err != nil {
		return nil, err
	}
	return retriever.FindClosest(ctx, query, topK, idx, nil)
}

// Lookup returns the stored chunk and its summary.
func (s *SchemaService) Lookup(ctx context.Context, id string) (domain.Chunk, domain.Summary, error) {
	c, err := s.store.Chunk(ctx, id)
	if err != nil {
		return domain.Chunk{}, domain.Summary{}, err
	}
	sm, err := s.store.Summary(ctx, id)
	if err != nil {
		return domain.Chunk{}, domain.Summary{}, err
	}
	return c, sm, nil
}

// SummarizeSchema returns the whole-schema summary recorded at extraction, which
// counts relationships between chunks too. Runs without one are summarized from
// the readable stored chunks, so only intra-chunk relationships are counted.
func (s *SchemaService) SummarizeSchema(ctx context.Context) (string, error) {
	m, err := s.store.Manifest(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load manifest: %w", err)
	}
	if m.SchemaSummary != "" {
		return m.SchemaSummary, nil
	}
	records, err := s.store.LoadChunks(ctx)
	if err != nil {
		return "", fmt.Errorf("load chunks: %w", err)
	}
	var (
		nodes []domain.SchemaNode
		rels  []domain.Relationship
	)
	for _, r := range records {
		if r.Err != nil {
			continue
		}
		nodes = append(nodes, r.Chunk.Nodes...)
		rels = append(rels, r.Chunk.Relationships...)
	}
	return summarizer.Summarize(nodes, rels), nil
}

// Answer is the retrieval context for a question.
type Answer struct {
	Prompt        string                    `json:"prompt"`
	BestChunk     string                    `json:"best_chunk"`
	SchemaSummary string                    `json:"schema_summary"`
	Results       []domain.SimilarityResult `json:"results"`
	// Context is the grounded prompt for a downstream generation step.
	Context string `json:"context"`
}

// Ask retrieves the closest chunks for prompt and composes the generation context
// from the best chunk's summary.
func (s *SchemaService) Ask(ctx context.Context, prompt string, topK int) (*Answer, error) {
	results, err := s.Query(ctx, prompt, topK)
	if err != nil {
		return nil, err
	}
	ans := &Answer{Prompt: prompt, Results: results}
	if len(results) == 0 {
		return ans, nil
	}
	ans.BestChunk = results[0].ChunkID
	sm, err := s.store.Summary(ctx, ans.BestChunk)
	if err != nil {
		return nil, fmt.Errorf("load summary %s: %w", ans.BestChunk, err)
	}
	ans.SchemaSummary = sm.Text
	ans.Context = ComposeContext(sm.Text, prompt)
	return ans, nil
}

// ComposeContext renders the schema summary and question for a BI-analysis prompt.
func ComposeContext(schemaSummary, question string) string {
	var b strings.Builder
	b.WriteString("## Analysis Context\n")
	b.WriteString("**Available Data Schema:**\n")
	b.WriteString(schemaSummary)
	b.WriteString("\n\n**User Question:**\n")
	b.WriteString(question)
	b.WriteString("\n")
	return b.String()
}
