package chunker

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemarag/internal/domain"
)

func nodesNamed(n int) []domain.SchemaNode {
	nodes := make([]domain.SchemaNode, n)
	for i := range nodes {
		nodes[i] = domain.SchemaNode{Name: fmt.Sprintf("t%02d", i), Type: "Dimension", Measures: []string{}}
	}
	return nodes
}

func TestChunk(t *testing.T) {
	t.Run("Rejects non-positive max size", func(t *testing.T) {
		for _, size := range []int{0, -1} {
			_, err := Chunk(nodesNamed(3), nil, size)
			assert.ErrorIs(t, err, ErrInvalidMaxSize)
		}
	})

	t.Run("Empty input yields no chunks", func(t *testing.T) {
		chunks, err := Chunk(nil, []domain.Relationship{{From: "a", To: "b"}}, 5)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("Chunks are bounded and concatenate to the input", func(t *testing.T) {
		for _, total := range []int{1, 4, 5, 6, 13} {
			for _, size := range []int{1, 2, 5, 50} {
				nodes := nodesNamed(total)
				chunks, err := Chunk(nodes, nil, size)
				require.NoError(t, err)

				var joined []domain.SchemaNode
				for i, c := range chunks {
					assert.LessOrEqual(t, len(c.Nodes), size)
					assert.NotEmpty(t, c.Nodes)
					assert.Equal(t, i, c.Index)
					assert.Equal(t, ChunkID(i), c.ID)
					joined = append(joined, c.Nodes...)
				}
				assert.Equal(t, nodes, joined, "total=%d size=%d", total, size)
			}
		}
	})

	t.Run("Only internal relationships survive", func(t *testing.T) {
		nodes := nodesNamed(4) // t00 t01 | t02 t03
		rels := []domain.Relationship{
			{From: "t00", To: "t01", RelType: "A"},
			{From: "t01", To: "t02", RelType: "CROSS"},
			{From: "t03", To: "t02", RelType: "B"},
			{From: "t00", To: "missing", RelType: "DANGLING"},
		}
		chunks, err := Chunk(nodes, rels, 2)
		require.NoError(t, err)
		require.Len(t, chunks, 2)

		assert.Equal(t, []domain.Relationship{rels[0]}, chunks[0].Relationships)
		assert.Equal(t, []domain.Relationship{rels[2]}, chunks[1].Relationships)
		for _, c := range chunks {
			for _, r := range c.Relationships {
				assert.NotEqual(t, "CROSS", r.RelType)
			}
		}
	})

	t.Run("Chunk without internal relationships has an empty list", func(t *testing.T) {
		chunks, err := Chunk(nodesNamed(2), nil, 1)
		require.NoError(t, err)
		for _, c := range chunks {
			assert.NotNil(t, c.Relationships)
			assert.Empty(t, c.Relationships)
		}
	})

	t.Run("Deterministic for identical input", func(t *testing.T) {
		nodes := nodesNamed(7)
		rels := []domain.Relationship{{From: "t00", To: "t01"}, {From: "t05", To: "t06"}}
		a, err := Chunk(nodes, rels, 3)
		require.NoError(t, err)
		b, err := Chunk(nodes, rels, 3)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("Chunks do not alias the input slice", func(t *testing.T) {
		nodes := nodesNamed(2)
		chunks, err := Chunk(nodes, nil, 2)
		require.NoError(t, err)
		chunks[0].Nodes[0].Name = "changed"
		assert.Equal(t, "t00", nodes[0].Name)
	})
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "schema_chunk_001", ChunkID(0))
	assert.Equal(t, "schema_chunk_042", ChunkID(41))
	assert.Equal(t, "schema_chunk_1000", ChunkID(999))
}

func TestNewSchemaChunker(t *testing.T) {
	_, err := NewSchemaChunker(0)
	assert.ErrorIs(t, err, ErrInvalidMaxSize)

	c, err := NewSchemaChunker(2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.MaxSize())

	chunks, err := c.Chunk(nodesNamed(3), nil)
	require.NoError(t, err)
	assert.Len(t, chunks, 2)
}
