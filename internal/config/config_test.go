package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fields(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestLoad(t *testing.T) {
	t.Run("Missing file returns defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "file", cfg.Source.Type)
		assert.Equal(t, 50, cfg.Chunker.MaxSize)
		assert.Equal(t, "tfidf", cfg.Embedder.Type)
		assert.Equal(t, 3, cfg.Retriever.TopK)
		assert.Equal(t, "schema_chunks", cfg.Store.File.Dir)
		assert.Empty(t, cfg.Validate())
	})

	t.Run("Partial file gets defaults applied", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := []byte(`
source:
  type: neo4j
  neo4j:
    uri: bolt://graph:7687
embedder:
  type: openai
  openai:
    model: text-embedding-3-large
chunker:
  max_size: 10
`)
		require.NoError(t, os.WriteFile(path, data, 0o644))
		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "Table", cfg.Source.Neo4j.Label)
		assert.Equal(t, "NEO4J_PASSWORD", cfg.Source.Neo4j.PasswordEnv)
		assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
		assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
		assert.Equal(t, 10, cfg.Chunker.MaxSize)
		assert.Equal(t, "schema", cfg.Chunker.Type)
		assert.Empty(t, cfg.Validate())
	})

	t.Run("Invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("source: [unclosed"), 0o644))
		_, err := Load(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retriever.TopK = 7
	require.NoError(t, Save(path, cfg))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLoadDefaultWritesUserConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	cfg, path, err := LoadDefault()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "schemarag", "config.yaml"), path)
	assert.FileExists(t, path)
	assert.Equal(t, defaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	t.Run("Reports every bad field", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Source.Type = "s3"
		cfg.Chunker.MaxSize = -1
		cfg.Embedder.Type = "word2vec"
		cfg.Retriever.TopK = 0
		cfg.Log.Level = "trace"
		assert.ElementsMatch(t,
			[]string{"source.type", "chunker.max_size", "embedder.type", "retriever.top_k", "log.level"},
			fields(cfg.Validate()))
	})

	t.Run("Cache requires a non-fitted embedder", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Cache.Type = "redis"
		cfg.Cache.Redis = &RedisConfig{Addr: "localhost:6379"}
		assert.Equal(t, []string{"cache.type"}, fields(cfg.Validate()))

		cfg.Embedder.Type = "ollama"
		assert.Empty(t, cfg.Validate())
	})

	t.Run("Postgres store needs a dsn", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Store.Type = "postgres"
		errs := cfg.Validate()
		require.Len(t, errs, 1)
		assert.Equal(t, "store.postgres: dsn or dsn_env is required", errs[0].Error())
	})
}
