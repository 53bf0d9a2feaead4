package summarizer

import (
	"context"
	"log/slog"
	"strings"

	"schemarag/internal/domain"
)

// ErrorMarkerPrefix starts the summary recorded for a chunk document that could not be read.
const ErrorMarkerPrefix = "Error parsing chunk: "

// IsErrorMarker reports whether a summary text stands in for an unreadable chunk.
func IsErrorMarker(text string) bool {
	return strings.HasPrefix(text, ErrorMarkerPrefix)
}

// BatchResult is the outcome of summarizing a set of persisted chunks.
type BatchResult struct {
	Summaries []domain.Summary
	Failed    []string
}

// Batch summarizes persisted chunk records. A broken record never aborts the run.
type Batch struct {
	Logger *slog.Logger
	// OnSummarized, if set, is called after every record.
	OnSummarized func(id string)
}

// Run summarizes records in their given order.
func (b *Batch) Run(ctx context.Context, records []domain.ChunkRecord) (*BatchResult, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	res := &BatchResult{Summaries: make([]domain.Summary, 0, len(records))}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := rec.Chunk.ID
		var text string
		if rec.Err != nil {
			text = ErrorMarkerPrefix + rec.Err.Error()
			res.Failed = append(res.Failed, id)
			logger.Warn("chunk document unreadable", slog.String("chunk_id", id), slog.String("error", rec.Err.Error()))
		} else {
			text = SummarizeChunk(rec.Chunk)
			logger.Debug("summarized chunk", slog.String("chunk_id", id), slog.Int("nodes", len(rec.Chunk.Nodes)))
		}
		res.Summaries = append(res.Summaries, domain.Summary{ChunkID: id, Text: text})
		if b.OnSummarized != nil {
			b.OnSummarized(id)
		}
	}
	return res, nil
}
