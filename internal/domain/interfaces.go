package domain

import "context"

// DefaultNodeType is assigned to schema nodes that carry no type.
const DefaultNodeType = "Unknown"

// UnnamedNode is the name reported for nodes that carry no name.
const UnnamedNode = "Unnamed"

// SchemaNode is a normalized warehouse table: a fact, a dimension or anything else.
type SchemaNode struct {
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Measures []string `json:"measures"`
}

// Relationship is a directed edge between two schema nodes.
type Relationship struct {
	From            string `json:"from"`
	To              string `json:"to"`
	RelType         string `json:"rel_type,omitempty"`
	RelPropertyType string `json:"rel_property_type,omitempty"`
}

// Label returns the semantic kind of the relationship, preferring RelType.
func (r Relationship) Label() string {
	if r.RelType != "" {
		return r.RelType
	}
	return r.RelPropertyType
}

// Chunk is a bounded group of schema nodes with the relationships fully inside it.
type Chunk struct {
	ID            string         `json:"id"`
	Index         int            `json:"index"`
	Nodes         []SchemaNode   `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}

// Summary is the deterministic text derived from a chunk.
type Summary struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"summary"`
}

// SimilarityResult pairs a chunk id with its cosine similarity to a query.
type SimilarityResult struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// Embedder converts text into a fixed-length vector.
// Model identifies the embedding function; vectors from different models are never compared.
type Embedder interface {
	Model() string
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CorpusFitter is implemented by embedders whose vector space depends on the corpus.
// Fit must return a new Embedder and leave the receiver untouched.
type CorpusFitter interface {
	Fit(corpus []string) (Embedder, error)
}

// SchemaSource exposes the schema graph. Nodes are expected pre-sorted by name.
type SchemaSource interface {
	Nodes(ctx context.Context) ([]SchemaNode, error)
	Relationships(ctx context.Context) ([]Relationship, error)
}

// ChunkRecord is a chunk loaded back from a store. Err is set when the persisted
// document could not be decoded; Chunk is then zero apart from ID and Index.
type ChunkRecord struct {
	Chunk Chunk
	Err   error
}

// ChunkDocument is the persisted form of a chunk; the id lives outside the document.
type ChunkDocument struct {
	Nodes         []SchemaNode   `json:"nodes"`
	Relationships []Relationship `json:"relationships"`
}
