package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawNode is the loosely-typed node shape found in graph records and chunk documents.
// Any field may be missing; Measures may be null or not a list at all.
type RawNode struct {
	Name     *string         `json:"name"`
	Type     *string         `json:"type"`
	Measures json.RawMessage `json:"measures"`
}

// RawRelationship is the relationship shape found in graph records and chunk documents.
type RawRelationship struct {
	From            string  `json:"from"`
	To              string  `json:"to"`
	RelType         *string `json:"rel_type"`
	RelPropertyType *string `json:"rel_property_type"`
	// Type is accepted for documents written with a plain "type" key.
	Type *string `json:"type"`
}

// RawDocument is a persisted chunk document.
type RawDocument struct {
	Nodes         []RawNode         `json:"nodes"`
	Relationships []RawRelationship `json:"relationships"`
}

// Normalize applies the defaults: Unknown type, Unnamed name, empty measures.
func (n RawNode) Normalize() SchemaNode {
	node := SchemaNode{Name: UnnamedNode, Type: DefaultNodeType, Measures: []string{}}
	if n.Name != nil {
		node.Name = *n.Name
	}
	if n.Type != nil && strings.TrimSpace(*n.Type) != "" {
		node.Type = *n.Type
	}
	node.Measures = decodeMeasures(n.Measures)
	return node
}

// Normalize converts the raw relationship into its typed form.
func (r RawRelationship) Normalize() Relationship {
	rel := Relationship{From: r.From, To: r.To}
	switch {
	case r.RelType != nil:
		rel.RelType = *r.RelType
	case r.Type != nil:
		rel.RelType = *r.Type
	}
	if r.RelPropertyType != nil {
		rel.RelPropertyType = *r.RelPropertyType
	}
	return rel
}

// Normalize converts a decoded chunk document into normalized nodes and relationships.
func (d RawDocument) Normalize() ([]SchemaNode, []Relationship) {
	nodes := make([]SchemaNode, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		nodes = append(nodes, n.Normalize())
	}
	rels := make([]Relationship, 0, len(d.Relationships))
	for _, r := range d.Relationships {
		rels = append(rels, r.Normalize())
	}
	return nodes, rels
}

// NormalizeMeasures converts an arbitrary measures value (as returned by a graph driver) to strings.
// Anything that is not a list yields an empty slice.
func NormalizeMeasures(v any) []string {
	list, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string{}, ss...)
		}
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, stringify(item))
	}
	return out
}

func decodeMeasures(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []any
	if err := json.Unmarshal(raw, &list); err != nil {
		return []string{}
	}
	return NormalizeMeasures(list)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
