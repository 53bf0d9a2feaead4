package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"schemarag/internal/domain"
	"schemarag/internal/store"
)

const (
	chunkPrefix   = "schema_chunk_"
	manifestFile  = "manifest.json"
	summariesFile = "summaries.json"
)

// Store keeps one JSON document per chunk in a directory, plus a manifest and a
// single summaries document whose key order is the summary order.
type Store struct {
	dir string
}

var _ store.ChunkStore = (*Store)(nil)

// New creates the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create chunk dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) chunkPath(id string) string { return filepath.Join(s.dir, id+".json") }

// SaveChunks removes previously stored chunk documents and summaries, then writes chunks.
func (s *Store) SaveChunks(ctx context.Context, m store.Manifest, chunks []domain.Chunk) error {
	old, err := s.chunkFiles()
	if err != nil {
		return err
	}
	for _, p := range old {
		if err := os.Remove(p); err != nil {
			return err
		}
	}
	if err := os.Remove(filepath.Join(s.dir, summariesFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		doc := domain.ChunkDocument{Nodes: c.Nodes, Relationships: c.Relationships}
		if err := writeJSON(s.chunkPath(c.ID), doc); err != nil {
			return fmt.Errorf("write %s: %w", c.ID, err)
		}
	}
	m.ChunkCount = len(chunks)
	return writeJSON(filepath.Join(s.dir, manifestFile), m)
}

func (s *Store) Manifest(_ context.Context) (store.Manifest, error) {
	var m store.Manifest
	data, err := os.ReadFile(filepath.Join(s.dir, manifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return m, store.ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

// LoadChunks reads every schema_chunk_*.json document in chunk number order.
func (s *Store) LoadChunks(ctx context.Context) ([]domain.ChunkRecord, error) {
	paths, err := s.chunkFiles()
	if err != nil {
		return nil, err
	}
	records := make([]domain.ChunkRecord, 0, len(paths))
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := strings.TrimSuffix(filepath.Base(p), ".json")
		c, err := readChunk(p)
		if err != nil {
			records = append(records, domain.ChunkRecord{Chunk: domain.Chunk{ID: id, Index: chunkIndex(id, i)}, Err: err})
			continue
		}
		c.ID, c.Index = id, chunkIndex(id, i)
		records = append(records, domain.ChunkRecord{Chunk: c})
	}
	return records, nil
}

func (s *Store) Chunk(_ context.Context, id string) (domain.Chunk, error) {
	if !validID(id) {
		return domain.Chunk{}, store.ErrNotFound
	}
	c, err := readChunk(s.chunkPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return domain.Chunk{}, fmt.Errorf("chunk %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return domain.Chunk{}, err
	}
	c.ID, c.Index = id, chunkIndex(id, 0)
	return c, nil
}

// SaveSummaries writes {"schema_chunk_001": "...", ...} preserving slice order.
func (s *Store) SaveSummaries(_ context.Context, summaries []domain.Summary) error {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, sm := range summaries {
		k, err := json.Marshal(sm.ChunkID)
		if err != nil {
			return err
		}
		v, err := json.Marshal(sm.Text)
		if err != nil {
			return err
		}
		buf.WriteString("  ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(summaries)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return writeFile(filepath.Join(s.dir, summariesFile), buf.Bytes())
}

// LoadSummaries decodes summaries.json token by token so key order survives.
func (s *Store) LoadSummaries(_ context.Context) ([]domain.Summary, error) {
	f, err := os.Open(filepath.Join(s.dir, summariesFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("summaries: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeSummaries(f)
}

func (s *Store) Summary(ctx context.Context, id string) (domain.Summary, error) {
	all, err := s.LoadSummaries(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	for _, sm := range all {
		if sm.ChunkID == id {
			return sm, nil
		}
	}
	return domain.Summary{}, fmt.Errorf("summary %s: %w", id, store.ErrNotFound)
}

func (s *Store) Close() error { return nil }

func (s *Store) chunkFiles() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(s.dir, chunkPrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	// schema_chunk_1000 must follow schema_chunk_999, so order by number, then name.
	number := func(p string) int {
		return chunkIndex(strings.TrimSuffix(filepath.Base(p), ".json"), math.MaxInt)
	}
	sort.Slice(paths, func(i, j int) bool {
		ni, nj := number(paths[i]), number(paths[j])
		if ni != nj {
			return ni < nj
		}
		return paths[i] < paths[j]
	})
	return paths, nil
}

func decodeSummaries(r io.Reader) ([]domain.Summary, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("decode summaries: expected object")
	}
	var out []domain.Summary
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode summaries: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("decode summaries: expected key")
		}
		var text string
		if err := dec.Decode(&text); err != nil {
			return nil, fmt.Errorf("decode summary %s: %w", key, err)
		}
		out = append(out, domain.Summary{ChunkID: key, Text: text})
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode summaries: %w", err)
	}
	return out, nil
}

func readChunk(path string) (domain.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Chunk{}, err
	}
	var raw domain.RawDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return domain.Chunk{}, err
	}
	nodes, rels := raw.Normalize()
	return domain.Chunk{Nodes: nodes, Relationships: rels}, nil
}

// chunkIndex parses the 1-based number of schema_chunk_NNN, falling back to position.
func chunkIndex(id string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimPrefix(id, chunkPrefix))
	if err != nil || n < 1 {
		return fallback
	}
	return n - 1
}

func validID(id string) bool {
	return strings.HasPrefix(id, chunkPrefix) && !strings.ContainsAny(id, `/\`) && !strings.Contains(id, "..")
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

// writeFile replaces path atomically through a sibling temp file.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
