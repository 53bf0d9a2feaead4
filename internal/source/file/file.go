package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"schemarag/internal/domain"
)

// Source reads a schema export shaped like a chunk document:
// {"nodes": [...], "relationships": [...]}.
type Source struct {
	path string

	once  sync.Once
	nodes []domain.SchemaNode
	rels  []domain.Relationship
	err   error
}

var _ domain.SchemaSource = (*Source)(nil)

// New returns a source for the JSON file at path. The file is read on first use.
func New(path string) *Source { return &Source{path: path} }

func (s *Source) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.err = fmt.Errorf("read schema export: %w", err)
		return
	}
	var raw domain.RawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		s.err = fmt.Errorf("decode schema export %s: %w", s.path, err)
		return
	}
	s.nodes, s.rels = raw.Normalize()
	// Same order as the graph query.
	sort.SliceStable(s.nodes, func(i, j int) bool { return s.nodes[i].Name < s.nodes[j].Name })
}

// Nodes returns normalized nodes sorted by name.
func (s *Source) Nodes(ctx context.Context) ([]domain.SchemaNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.SchemaNode(nil), s.nodes...), nil
}

// Relationships returns normalized relationships in file order.
func (s *Source) Relationships(ctx context.Context) ([]domain.Relationship, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.once.Do(s.load)
	if s.err != nil {
		return nil, s.err
	}
	return append([]domain.Relationship(nil), s.rels...), nil
}
