package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"

	"schemarag/internal/app"
	"schemarag/internal/config"
	"schemarag/internal/logging"
	"schemarag/internal/server"
	"schemarag/internal/store"
	"schemarag/internal/tui"
)

const usage = `Usage: schemarag [-config=config.yaml] <command> [flags]

Commands:
  extract     read the schema graph, chunk it and persist the chunks
  summarize   summarize every stored chunk
  index       embed the stored summaries and report the build
  query       answer one question: query -q "which facts hold revenue" [-k 3]
  serve       build the index and serve it over HTTP
  tui         build the index and search it interactively
`

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		color.Red("Error loading .env: %v\n", err)
	}
	cfgPath := flag.String("config", "", "Path to config YAML (default ./config.yaml or ~/.config/schemarag/config.yaml)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *cfgPath, flag.Arg(0), flag.Args()[1:]); err != nil {
		color.Red("Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.AppConfig, error) {
	if path == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(path)
}

func run(ctx context.Context, cfgPath, command string, args []string) error {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	query := fs.String("q", "", "Question to retrieve schema context for")
	topK := fs.Int("k", cfg.Retriever.TopK, "Number of chunks to return")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Warn("failed to release resources", slog.String("error", err.Error()))
		}
	}()

	switch command {
	case "extract":
		return extract(ctx, a)
	case "summarize":
		return summarize(ctx, a)
	case "index":
		return buildIndex(ctx, a)
	case "query":
		if *query == "" {
			return errors.New("query: -q is required")
		}
		if err := buildIndex(ctx, a); err != nil {
			return err
		}
		return ask(ctx, a, *query, *topK)
	case "serve":
		if err := buildIndex(ctx, a); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			color.Yellow("No summaries stored yet; POST /reindex after running summarize.\n")
		}
		srv := server.New(a.Service, server.Config{
			Addr:         cfg.Server.Addr,
			DefaultTopK:  cfg.Retriever.TopK,
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			Logger:       logger,
		})
		color.Cyan("Serving schema search on %s\n", cfg.Server.Addr)
		return srv.Run(ctx)
	case "tui":
		if err := buildIndex(ctx, a); err != nil {
			return err
		}
		summary, err := a.Service.SummarizeSchema(ctx)
		if err != nil {
			return err
		}
		_, err = tea.NewProgram(tui.New(ctx, a.Service, summary, *topK), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
		return err
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func extract(ctx context.Context, a *app.App) error {
	spinner := getSpinner("Reading schema graph...")
	res, err := a.Service.Extract(ctx)
	_ = spinner.Finish()
	if err != nil {
		return err
	}
	color.Green("\n✓ Extracted %d nodes and %d relationships into %d chunks (run %s)\n",
		res.Nodes, res.Relationships, len(res.Chunks), res.RunID)
	return nil
}

func summarize(ctx context.Context, a *app.App) error {
	m, err := a.Service.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("no extraction run found: %w", err)
	}
	bar := getProgressBar(m.ChunkCount, "Summarizing chunks...")
	res, err := a.Service.Summarize(ctx, func(string) { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}
	color.Green("\n✓ Summarized %d chunks\n", len(res.Summaries))
	for _, id := range res.Failed {
		color.Yellow("  unreadable: %s\n", id)
	}
	return nil
}

func buildIndex(ctx context.Context, a *app.App) error {
	m, err := a.Service.Manifest(ctx)
	if err != nil {
		return fmt.Errorf("no extraction run found: %w", err)
	}
	bar := getProgressBar(m.ChunkCount, "Embedding summaries...")
	report, err := a.Service.BuildIndex(ctx, func(string, error) { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}
	color.Green("\n✓ Indexed %d chunks\n", report.Indexed)
	for _, f := range report.Failures {
		color.Yellow("  failed: %s: %v\n", f.ChunkID, f.Err)
	}
	return nil
}

func ask(ctx context.Context, a *app.App, query string, topK int) error {
	ans, err := a.Service.Ask(ctx, query, topK)
	if err != nil {
		return err
	}
	if len(ans.Results) == 0 {
		color.Yellow("No chunks indexed.\n")
		return nil
	}
	color.Cyan("\nTop %d chunk(s) for %q\n", len(ans.Results), query)
	for i, r := range ans.Results {
		fmt.Printf("%d. %s  score=%.3f\n", i+1, r.ChunkID, r.Score)
	}
	color.Cyan("\n%s", ans.Context)
	return nil
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("chunks"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
