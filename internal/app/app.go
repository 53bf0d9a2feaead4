package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"schemarag/internal/chunker"
	"schemarag/internal/config"
	"schemarag/internal/domain"
	"schemarag/internal/embedding"
	"schemarag/internal/embedding/cache"
	"schemarag/internal/embedding/hugot"
	"schemarag/internal/embedding/ollama"
	"schemarag/internal/embedding/openai"
	"schemarag/internal/embedding/tfidf"
	"schemarag/internal/index"
	"schemarag/internal/service"
	sourcefile "schemarag/internal/source/file"
	sourceneo4j "schemarag/internal/source/neo4j"
	"schemarag/internal/store"
	storefile "schemarag/internal/store/file"
	"schemarag/internal/store/postgres"
)

// App holds the assembled service and the resources it owns.
type App struct {
	Service *service.SchemaService
	Config  *config.AppConfig
	Logger  *slog.Logger

	closers []func(ctx context.Context) error
}

// New validates cfg and assembles every component it selects.
func New(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, fmt.Errorf("invalid config: %w", errors.Join(joined...))
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	src, err := a.newSource(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	st, err := a.newStore(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	emb, err := a.newEmbedder(ctx)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	ch, err := chunker.NewSchemaChunker(cfg.Chunker.MaxSize)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	svc, err := service.New(service.Config{
		Source:   src,
		Chunker:  ch,
		Store:    st,
		Embedder: emb,
		Index:    index.Options{Workers: cfg.Index.Workers, FailFast: cfg.Index.FailFast},
		Logger:   logger,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	a.Service = svc
	logger.Debug("components assembled",
		slog.String("source", cfg.Source.Type),
		slog.String("store", cfg.Store.Type),
		slog.String("embedder", emb.Model()),
		slog.String("cache", cfg.Cache.Type))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(ctx context.Context) error) { a.closers = append(a.closers, fn) }

func (a *App) newSource(ctx context.Context) (domain.SchemaSource, error) {
	sc := a.Config.Source
	switch sc.Type {
	case "file":
		return sourcefile.New(sc.File.Path), nil
	case "neo4j":
		n := sc.Neo4j
		src, err := sourceneo4j.New(ctx, sourceneo4j.Config{
			URI:      n.URI,
			Username: n.Username,
			Password: os.Getenv(n.PasswordEnv),
			Database: n.Database,
			Label:    n.Label,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(src.Close)
		return src, nil
	default:
		return nil, fmt.Errorf("unknown source: %s", sc.Type)
	}
}

func (a *App) newStore(ctx context.Context) (store.ChunkStore, error) {
	sc := a.Config.Store
	switch sc.Type {
	case "file":
		return storefile.New(sc.File.Dir)
	case "postgres":
		dsn, err := ResolveDSN(sc.Postgres)
		if err != nil {
			return nil, err
		}
		st, err := postgres.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return st.Close() })
		return st, nil
	default:
		return nil, fmt.Errorf("unknown store: %s", sc.Type)
	}
}

func (a *App) newEmbedder(ctx context.Context) (domain.Embedder, error) {
	ec := a.Config.Embedder
	var emb domain.Embedder
	switch ec.Type {
	case "tfidf":
		// Fitted per build; caching and timeouts would hide the fitter.
		return tfidf.NewEmbedder(), nil
	case "openai":
		o := ec.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:           o.BaseURL,
			APIKeyEnv:         o.APIKeyEnv,
			Model:             o.Model,
			Timeout:           time.Duration(o.TimeoutSecs) * time.Second,
			RequestsPerSecond: o.RequestsPerSecond,
			MaxRetries:        o.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		emb = client
	case "hugot":
		h, err := hugot.New(hugot.Config{Model: ec.Hugot.Model, ModelDir: ec.Hugot.ModelDir})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return h.Close() })
		emb = h
	case "ollama":
		o, err := ollama.New(ollama.Config{Model: ec.Ollama.Model, BaseURL: ec.Ollama.BaseURL})
		if err != nil {
			return nil, err
		}
		emb = o
	default:
		return nil, fmt.Errorf("unknown embedder: %s", ec.Type)
	}

	backend, err := a.newCacheBackend(ctx)
	if err != nil {
		return nil, err
	}
	if backend != nil {
		emb = cache.New(emb, backend, a.Logger)
	}
	return embedding.WithTimeout(emb, time.Duration(ec.TimeoutSecs)*time.Second), nil
}

func (a *App) newCacheBackend(ctx context.Context) (cache.Backend, error) {
	cc := a.Config.Cache
	switch cc.Type {
	case "none":
		return nil, nil
	case "redis":
		r := cc.Redis
		b, err := cache.NewRedisBackend(ctx, cache.RedisConfig{
			Addr:     r.Addr,
			Password: os.Getenv(r.PasswordEnv),
			DB:       r.DB,
			Prefix:   "schemarag:emb:",
			TTL:      time.Duration(r.TTLSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return b.Close() })
		return b, nil
	case "postgres":
		dsn, err := ResolveDSN(cc.Postgres)
		if err != nil {
			return nil, err
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		a.onClose(func(context.Context) error { pool.Close(); return nil })
		c, err := postgres.NewEmbeddingCache(ctx, pool)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown cache: %s", cc.Type)
	}
}

// ResolveDSN returns the literal DSN, or the value of the env var it names.
func ResolveDSN(pc *config.PostgresConfig) (string, error) {
	if pc == nil {
		return "", errors.New("postgres config missing")
	}
	if pc.DSN != "" {
		return pc.DSN, nil
	}
	if v := os.Getenv(pc.DSNEnv); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("postgres dsn not set: export %s", pc.DSNEnv)
}
