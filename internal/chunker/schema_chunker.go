package chunker

import (
	"errors"
	"fmt"

	"schemarag/internal/domain"
)

// DefaultMaxSize is the number of nodes per chunk used when none is configured.
const DefaultMaxSize = 50

// ErrInvalidMaxSize is returned when the chunk size is not positive.
var ErrInvalidMaxSize = errors.New("chunk max size must be positive")

// ChunkID returns the stable identifier of the chunk at the given 0-based position.
func ChunkID(index int) string {
	return fmt.Sprintf("schema_chunk_%03d", index+1)
}

// Chunk splits nodes into contiguous groups of at most maxSize, preserving order.
// Each group keeps only the relationships whose both endpoints are in the group;
// relationships that cross a group boundary are dropped.
func Chunk(nodes []domain.SchemaNode, relationships []domain.Relationship, maxSize int) ([]domain.Chunk, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidMaxSize
	}
	if len(nodes) == 0 {
		return []domain.Chunk{}, nil
	}
	chunks := make([]domain.Chunk, 0, (len(nodes)+maxSize-1)/maxSize)
	for start := 0; start < len(nodes); start += maxSize {
		end := start + maxSize
		if end > len(nodes) {
			end = len(nodes)
		}
		group := append([]domain.SchemaNode(nil), nodes[start:end]...)
		members := make(map[string]struct{}, len(group))
		for _, n := range group {
			members[n.Name] = struct{}{}
		}
		rels := []domain.Relationship{}
		for _, r := range relationships {
			_, fromIn := members[r.From]
			_, toIn := members[r.To]
			if fromIn && toIn {
				rels = append(rels, r)
			}
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:            ChunkID(idx),
			Index:         idx,
			Nodes:         group,
			Relationships: rels,
		})
	}
	return chunks, nil
}

// SchemaChunker partitions a schema with a fixed maximum chunk size.
type SchemaChunker struct {
	maxSize int
}

// NewSchemaChunker validates maxSize and returns a chunker.
func NewSchemaChunker(maxSize int) (*SchemaChunker, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidMaxSize, maxSize)
	}
	return &SchemaChunker{maxSize: maxSize}, nil
}

// MaxSize returns the configured number of nodes per chunk.
func (c *SchemaChunker) MaxSize() int { return c.maxSize }

// Chunk partitions the given nodes and relationships.
func (c *SchemaChunker) Chunk(nodes []domain.SchemaNode, relationships []domain.Relationship) ([]domain.Chunk, error) {
	return Chunk(nodes, relationships, c.maxSize)
}
