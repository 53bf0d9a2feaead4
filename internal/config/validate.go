package config

import "fmt"

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate reports every invalid field; an empty result means the config is usable.
func (c *AppConfig) Validate() []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	switch c.Source.Type {
	case "file":
		if c.Source.File == nil || c.Source.File.Path == "" {
			add("source.file.path", "is required")
		}
	case "neo4j":
		if c.Source.Neo4j == nil {
			add("source.neo4j", "is required for type neo4j")
		} else if c.Source.Neo4j.URI == "" {
			add("source.neo4j.uri", "is required")
		}
	default:
		add("source.type", "unknown source %q", c.Source.Type)
	}

	if c.Chunker.Type != "schema" {
		add("chunker.type", "unknown chunker %q", c.Chunker.Type)
	}
	if c.Chunker.MaxSize < 1 {
		add("chunker.max_size", "must be at least 1, got %d", c.Chunker.MaxSize)
	}

	switch c.Store.Type {
	case "file":
		if c.Store.File == nil || c.Store.File.Dir == "" {
			add("store.file.dir", "is required")
		}
	case "postgres":
		if c.Store.Postgres == nil || (c.Store.Postgres.DSN == "" && c.Store.Postgres.DSNEnv == "") {
			add("store.postgres", "dsn or dsn_env is required")
		}
	default:
		add("store.type", "unknown store %q", c.Store.Type)
	}

	switch c.Embedder.Type {
	case "tfidf", "hugot", "ollama":
	case "openai":
		if c.Embedder.OpenAI == nil {
			add("embedder.openai", "is required for type openai")
		} else if c.Embedder.OpenAI.RequestsPerSecond < 0 {
			add("embedder.openai.requests_per_second", "must not be negative")
		}
	default:
		add("embedder.type", "unknown embedder %q", c.Embedder.Type)
	}
	if c.Embedder.TimeoutSecs < 0 {
		add("embedder.timeout_secs", "must not be negative")
	}

	switch c.Cache.Type {
	case "none":
	case "redis":
		if c.Cache.Redis == nil {
			add("cache.redis", "is required for type redis")
		}
	case "postgres":
		if c.Cache.Postgres == nil || (c.Cache.Postgres.DSN == "" && c.Cache.Postgres.DSNEnv == "") {
			add("cache.postgres", "dsn or dsn_env is required")
		}
	default:
		add("cache.type", "unknown cache %q", c.Cache.Type)
	}
	if c.Cache.Type != "none" && c.Embedder.Type == "tfidf" {
		add("cache.type", "tfidf embedders are refitted on every build and are not cached")
	}

	if c.Index.Workers < 1 {
		add("index.workers", "must be at least 1, got %d", c.Index.Workers)
	}
	if c.Retriever.TopK < 1 {
		add("retriever.top_k", "must be at least 1, got %d", c.Retriever.TopK)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		add("log.level", "unknown level %q", c.Log.Level)
	}
	return errs
}
