package summarizer

import (
	"fmt"
	"strings"

	"schemarag/internal/domain"
)

// MaxSamples is the number of example node names kept per type.
const MaxSamples = 3

// Separator joins the rendered summary clauses.
const Separator = "; "

// TypeStat counts the nodes of one type and keeps the first few names seen.
type TypeStat struct {
	Type    string
	Count   int
	Samples []string
}

// Profile is the structured form of a summary. Every list is in first-seen order.
type Profile struct {
	Types              []TypeStat
	TotalNodes         int
	TotalMeasures      int
	TotalRelationships int
	RelationshipTypes  []string
}

// Count returns the number of nodes of the given type.
func (p Profile) Count(nodeType string) int {
	for _, ts := range p.Types {
		if ts.Type == nodeType {
			return ts.Count
		}
	}
	return 0
}

// BuildProfile computes the profile of a chunk or a whole schema.
func BuildProfile(nodes []domain.SchemaNode, relationships []domain.Relationship) Profile {
	p := Profile{TotalNodes: len(nodes), TotalRelationships: len(relationships)}
	pos := make(map[string]int)
	for _, n := range nodes {
		t := n.Type
		if t == "" {
			t = domain.DefaultNodeType
		}
		i, ok := pos[t]
		if !ok {
			i = len(p.Types)
			pos[t] = i
			p.Types = append(p.Types, TypeStat{Type: t})
		}
		p.Types[i].Count++
		if len(p.Types[i].Samples) < MaxSamples {
			p.Types[i].Samples = append(p.Types[i].Samples, n.Name)
		}
		p.TotalMeasures += len(n.Measures)
	}
	seen := make(map[string]struct{})
	for _, r := range relationships {
		label := r.Label()
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		p.RelationshipTypes = append(p.RelationshipTypes, label)
	}
	return p
}

// Render formats the profile as a single line of clauses.
func (p Profile) Render() string {
	clauses := make([]string, 0, len(p.Types)+3)
	for _, ts := range p.Types {
		clauses = append(clauses, fmt.Sprintf("%d %s(s) e.g. [%s]", ts.Count, ts.Type, strings.Join(ts.Samples, ", ")))
	}
	clauses = append(clauses, fmt.Sprintf("Total measures across nodes: %d", p.TotalMeasures))
	clauses = append(clauses, fmt.Sprintf("Total relationships: %d", p.TotalRelationships))
	if len(p.RelationshipTypes) > 0 {
		clauses = append(clauses, "Relationship types: "+strings.Join(p.RelationshipTypes, ", "))
	}
	return strings.Join(clauses, Separator)
}

// Summarize compresses nodes and relationships into the text that gets embedded.
// Identical input always yields an identical string.
func Summarize(nodes []domain.SchemaNode, relationships []domain.Relationship) string {
	return BuildProfile(nodes, relationships).Render()
}

// SummarizeChunk summarizes a single chunk.
func SummarizeChunk(c domain.Chunk) string {
	return Summarize(c.Nodes, c.Relationships)
}

// Brief renders the short per-chunk line printed while extracting.
func Brief(c domain.Chunk) string {
	p := BuildProfile(c.Nodes, c.Relationships)
	return fmt.Sprintf("Nodes: %d (Facts: %d, Dimensions: %d); Relationship types: %s",
		p.TotalNodes, p.Count("Fact"), p.Count("Dimension"), strings.Join(p.RelationshipTypes, ", "))
}
