package neo4j

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"schemarag/internal/domain"
)

// DefaultLabel is the node label of warehouse tables.
const DefaultLabel = "Table"

// ErrInvalidLabel is returned for labels that cannot be safely embedded in Cypher.
var ErrInvalidLabel = errors.New("invalid node label")

var labelPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config contains connection details for the schema graph.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
	Label    string
}

// Source reads schema nodes and relationships from Neo4j.
type Source struct {
	driver   neo4j.DriverWithContext
	database string
	label    string
}

var _ domain.SchemaSource = (*Source)(nil)

// New creates a driver and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Source, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j unreachable at %s: %w", cfg.URI, err)
	}
	s, err := NewWithDriver(driver, cfg.Database, cfg.Label)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

// NewWithDriver wraps an existing driver.
func NewWithDriver(driver neo4j.DriverWithContext, database, label string) (*Source, error) {
	if label == "" {
		label = DefaultLabel
	}
	if !labelPattern.MatchString(label) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLabel, label)
	}
	return &Source{driver: driver, database: database, label: label}, nil
}

func (s *Source) nodesQuery() string {
	return fmt.Sprintf("MATCH (n:`%s`) RETURN n.name AS name, n.type AS type, n.measures AS measures ORDER BY n.name", s.label)
}

func (s *Source) relationshipsQuery() string {
	return fmt.Sprintf("MATCH (a:`%[1]s`)-[r]->(b:`%[1]s`) RETURN a.name AS from, b.name AS to, type(r) AS rel_type, r.type AS rel_property_type", s.label)
}

func (s *Source) read(ctx context.Context, query string) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead, DatabaseName: s.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

// Nodes returns every table node ordered by name.
func (s *Source) Nodes(ctx context.Context) ([]domain.SchemaNode, error) {
	records, err := s.read(ctx, s.nodesQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to read schema nodes: %w", err)
	}
	nodes := make([]domain.SchemaNode, 0, len(records))
	for _, r := range records {
		nodes = append(nodes, nodeFromRecord(r))
	}
	return nodes, nil
}

// Relationships returns every directed edge between table nodes.
func (s *Source) Relationships(ctx context.Context) ([]domain.Relationship, error) {
	records, err := s.read(ctx, s.relationshipsQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to read schema relationships: %w", err)
	}
	rels := make([]domain.Relationship, 0, len(records))
	for _, r := range records {
		rels = append(rels, relationshipFromRecord(r))
	}
	return rels, nil
}

// Close closes the driver.
func (s *Source) Close(ctx context.Context) error { return s.driver.Close(ctx) }

func nodeFromRecord(r *neo4j.Record) domain.SchemaNode {
	node := domain.SchemaNode{Name: domain.UnnamedNode, Type: domain.DefaultNodeType}
	if v, ok := stringValue(r, "name"); ok {
		node.Name = v
	}
	if v, ok := stringValue(r, "type"); ok && v != "" {
		node.Type = v
	}
	measures, _ := r.Get("measures")
	node.Measures = domain.NormalizeMeasures(measures)
	return node
}

func relationshipFromRecord(r *neo4j.Record) domain.Relationship {
	var rel domain.Relationship
	rel.From, _ = stringValue(r, "from")
	rel.To, _ = stringValue(r, "to")
	rel.RelType, _ = stringValue(r, "rel_type")
	rel.RelPropertyType, _ = stringValue(r, "rel_property_type")
	return rel
}

func stringValue(r *neo4j.Record, key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}
