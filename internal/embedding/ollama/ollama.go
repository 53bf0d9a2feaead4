package ollama

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms/ollama"

	"schemarag/internal/domain"
)

const (
	DefaultModel   = "nomic-embed-text:latest"
	DefaultBaseURL = "http://localhost:11434"
)

// ErrNoEmbedding is returned when the server answers without a vector.
var ErrNoEmbedding = errors.New("no embedding returned")

type embeddingCreator interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

// Config represents the configuration for the Ollama embedder.
type Config struct {
	Model   string
	BaseURL string // Ollama server URL
}

// Embedder embeds text through an Ollama server.
type Embedder struct {
	model string
	llm   embeddingCreator
}

var _ domain.Embedder = (*Embedder)(nil)

// New connects an embedder to the configured Ollama server.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ollama client: %w", err)
	}
	return &Embedder{model: cfg.Model, llm: llm}, nil
}

// Model returns the identity of the embedder.
func (e *Embedder) Model() string { return "ollama:" + e.model }

// Embed returns the vector of a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return out[0], nil
}
