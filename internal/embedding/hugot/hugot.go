package hugot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"

	"schemarag/internal/domain"
)

// DefaultModel produces 384-dimensional sentence embeddings.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// ErrNoEmbedding is returned when the pipeline yields no vector.
var ErrNoEmbedding = errors.New("no embedding generated")

// Config configures the local sentence-transformer embedder.
type Config struct {
	Model    string
	ModelDir string
}

// Embedder runs a sentence-transformer model in-process through a pure Go ONNX backend.
type Embedder struct {
	model   string
	mu      sync.Mutex
	run     func(texts []string) ([][]float32, error)
	destroy func() error
}

var _ domain.Embedder = (*Embedder)(nil)

// New prepares the model, downloading it into ModelDir when missing, and starts a session.
func New(cfg Config) (*Embedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	modelPath, err := PrepareModel(cfg.Model, cfg.ModelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}
	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "schema-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create feature extraction pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create feature extraction pipeline: %w", err)
	}

	run := func(texts []string) ([][]float32, error) {
		result, err := pipeline.RunPipeline(texts)
		if err != nil {
			return nil, err
		}
		return result.Embeddings, nil
	}
	return newEmbedder(cfg.Model, run, session.Destroy), nil
}

func newEmbedder(model string, run func([]string) ([][]float32, error), destroy func() error) *Embedder {
	return &Embedder{model: model, run: run, destroy: destroy}
}

// Model returns the model name.
func (e *Embedder) Model() string { return e.model }

// Embed runs the pipeline on a single text. Pipeline calls are serialized.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out, err := e.run([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(out) == 0 || len(out[0]) == 0 {
		return nil, ErrNoEmbedding
	}
	return out[0], nil
}

// Close releases the hugot session.
func (e *Embedder) Close() error {
	if e.destroy == nil {
		return nil
	}
	return e.destroy()
}

// PrepareModel downloads the model if it doesn't exist and returns the model path.
func PrepareModel(modelName, modelDir string) (string, error) {
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", err
	}
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloadedPath, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloadedPath, nil
}
