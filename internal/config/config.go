package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileSourceConfig points at a JSON schema export with nodes and relationships.
type FileSourceConfig struct {
	Path string `yaml:"path"`
}

// Neo4jConfig contains connection details for the schema graph.
type Neo4jConfig struct {
	URI         string `yaml:"uri"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	Database    string `yaml:"database"`
	Label       string `yaml:"label"`
}

// SourceConfig selects where the schema graph is read from.
type SourceConfig struct {
	Type  string            `yaml:"type"`
	File  *FileSourceConfig `yaml:"file,omitempty"`
	Neo4j *Neo4jConfig      `yaml:"neo4j,omitempty"`
}

// ChunkerConfig configures how the schema is split into chunks.
type ChunkerConfig struct {
	Type    string `yaml:"type"`
	MaxSize int    `yaml:"max_size"`
}

// FileStoreConfig configures the directory-backed chunk store.
type FileStoreConfig struct {
	Dir string `yaml:"dir"`
}

// PostgresConfig holds the connection string, or the env var that carries it.
type PostgresConfig struct {
	DSN    string `yaml:"dsn,omitempty"`
	DSNEnv string `yaml:"dsn_env"`
}

// StoreConfig selects and configures chunk and summary persistence.
type StoreConfig struct {
	Type     string           `yaml:"type"`
	File     *FileStoreConfig `yaml:"file,omitempty"`
	Postgres *PostgresConfig  `yaml:"postgres,omitempty"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// MaxRetries of 0 means the client default; a negative value disables retries.
	MaxRetries int `yaml:"max_retries"`
}

// HugotEmbedderConfig configures the in-process sentence-transformer.
type HugotEmbedderConfig struct {
	Model    string `yaml:"model"`
	ModelDir string `yaml:"model_dir"`
}

// OllamaEmbedderConfig configures embeddings served by Ollama.
type OllamaEmbedderConfig struct {
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Hugot       *HugotEmbedderConfig  `yaml:"hugot,omitempty"`
	Ollama      *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
}

// RedisConfig contains connection details for the Redis embedding cache.
type RedisConfig struct {
	Addr        string `yaml:"addr"`
	PasswordEnv string `yaml:"password_env"`
	DB          int    `yaml:"db"`
	TTLSecs     int    `yaml:"ttl_secs"`
}

// CacheConfig selects an embedding cache: none, redis or postgres.
type CacheConfig struct {
	Type     string          `yaml:"type"`
	Redis    *RedisConfig    `yaml:"redis,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
}

// IndexConfig tunes index builds.
type IndexConfig struct {
	Workers  int  `yaml:"workers"`
	FailFast bool `yaml:"fail_fast"`
}

// RetrieverConfig tunes queries.
type RetrieverConfig struct {
	TopK int `yaml:"top_k"`
}

// ServerConfig configures the HTTP query service.
type ServerConfig struct {
	Addr             string `yaml:"addr"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Source    SourceConfig    `yaml:"source"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Cache     CacheConfig     `yaml:"cache"`
	Index     IndexConfig     `yaml:"index"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/schemarag/config.yaml.
// If neither exists, it writes defaults to ~/.config/schemarag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "schemarag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Source:   SourceConfig{Type: "file", File: &FileSourceConfig{Path: "schema.json"}},
		Chunker:  ChunkerConfig{Type: "schema", MaxSize: 50},
		Store:    StoreConfig{Type: "file", File: &FileStoreConfig{Dir: "schema_chunks"}},
		Embedder: EmbedderConfig{Type: "tfidf"},
		Cache:    CacheConfig{Type: "none"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Source.Type == "" {
		cfg.Source.Type = "file"
	}
	if cfg.Source.Type == "file" && cfg.Source.File == nil {
		cfg.Source.File = &FileSourceConfig{Path: "schema.json"}
	}
	if cfg.Source.Type == "neo4j" && cfg.Source.Neo4j != nil {
		n := cfg.Source.Neo4j
		if n.URI == "" {
			n.URI = "bolt://localhost:7687"
		}
		if n.Username == "" {
			n.Username = "neo4j"
		}
		if n.PasswordEnv == "" {
			n.PasswordEnv = "NEO4J_PASSWORD"
		}
		if n.Label == "" {
			n.Label = "Table"
		}
	}
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "schema"
	}
	if cfg.Chunker.MaxSize == 0 {
		cfg.Chunker.MaxSize = 50
	}
	if cfg.Store.Type == "" {
		cfg.Store.Type = "file"
	}
	if cfg.Store.Type == "file" && cfg.Store.File == nil {
		cfg.Store.File = &FileStoreConfig{Dir: "schema_chunks"}
	}
	if cfg.Store.Type == "postgres" && cfg.Store.Postgres != nil && cfg.Store.Postgres.DSN == "" && cfg.Store.Postgres.DSNEnv == "" {
		cfg.Store.Postgres.DSNEnv = "DATABASE_URL"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "tfidf"
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.Embedder.Type == "hugot" && cfg.Embedder.Hugot == nil {
		cfg.Embedder.Hugot = &HugotEmbedderConfig{}
	}
	if h := cfg.Embedder.Hugot; h != nil {
		if h.Model == "" {
			h.Model = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if h.ModelDir == "" {
			h.ModelDir = "./models"
		}
	}
	if cfg.Embedder.Type == "ollama" && cfg.Embedder.Ollama == nil {
		cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
	}
	if o := cfg.Embedder.Ollama; o != nil {
		if o.Model == "" {
			o.Model = "nomic-embed-text:latest"
		}
		if o.BaseURL == "" {
			o.BaseURL = "http://localhost:11434"
		}
	}
	if cfg.Cache.Type == "" {
		cfg.Cache.Type = "none"
	}
	if cfg.Cache.Type == "redis" && cfg.Cache.Redis != nil && cfg.Cache.Redis.Addr == "" {
		cfg.Cache.Redis.Addr = "localhost:6379"
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 4
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = 3
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 15
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		cfg.Server.WriteTimeoutSecs = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
