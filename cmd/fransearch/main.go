// Package main is the fransearch CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/cli"
	"github.com/hyperjump/fransearch/internal/config"
	"github.com/hyperjump/fransearch/internal/importer"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/models"
	"github.com/hyperjump/fransearch/internal/server"
	"github.com/hyperjump/fransearch/internal/watcher"
	"github.com/hyperjump/fransearch/pkg/utils"
)

var version = "dev"

// loadConfig loads config from path, or from the first default location
// that exists when path is empty. It returns the path actually used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func newLogger(cfg *config.Config, debug bool) (*zap.Logger, error) {
	if debug || cfg.Debug {
		return utils.NewLogger(true)
	}
	return utils.NewLoggerWithLevel(cfg.LogLevel)
}

func main() {
	command, args := "server", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "search":
		err = runSearch(args)
	case "import":
		err = runImport(args)
	case "retrain":
		err = runRetrain(args)
	case "status":
		err = runStatus(args)
	case "config":
		err = runConfig(args)
	case "version", "--version", "-v":
		fmt.Printf("fransearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, *debug)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug || *debug))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	sup := suture.New("fransearch", suture.Spec{
		EventHook: func(e suture.Event) {
			logger.Warn("supervisor event", zap.String("event", e.String()))
		},
		Timeout: 15 * time.Second,
	})
	sup.Add(server.NewServer(app.Store, app.Engine, app.Manager, cfg.Server, cfg.Admin.APIKey, logger))
	if cfg.Watcher.Enabled {
		opts := []watcher.WatcherOption{watcher.WithLogger(logger), watcher.WithDebounce(cfg.Watcher.Debounce)}
		if cfg.Watcher.AutoRetrain {
			opts = append(opts, watcher.WithAutoRetrain(app.Manager))
		}
		sup.Add(watcher.NewWatcher(cfg.Dataset.Path, app.Store, opts...))
	}
	if cfg.Admin.APIKey == "" {
		logger.Warn("admin API key not set, admin routes are disabled")
	}

	go func() {
		if err := app.Manager.Initialize(ctx); err != nil {
			logger.Error("model initialization failed, search unavailable until a retrain succeeds", zap.Error(err))
		}
	}()

	err = sup.Serve(ctx)
	logger.Info("Shutting down...")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: fransearch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Examples:
  fransearch search pizza delivery
  fransearch search --weight 0 "pizza"              # keyword-only ranking
  fransearch search --sector Food --tags pizza,vegan healthy food
  fransearch search --output json "coffee"
`)
}

// buildSearchQuery joins the positional args into one query string.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves flags found after the query to the front so that
// flag.Parse sees them.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:5000", "server URL")
	topN := fs.Int("top-n", 0, "number of results (0 = server default)")
	weight := fs.Float64("weight", -1, "semantic weight in [0, 1] (negative = server default)")
	sector := fs.String("sector", "", "only listings in this sector")
	location := fs.String("location", "", "only listings whose location contains this text")
	tags := fs.String("tags", "", "comma separated tags; a listing must carry at least one")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(args))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}

	query := &models.SearchQuery{
		Query: queryStr,
		TopN:  *topN,
		Filters: models.Filters{
			Sector:   *sector,
			Location: *location,
		},
	}
	if *tags != "" {
		query.Filters.Tags = strings.Split(*tags, ",")
	}
	if *weight >= 0 {
		query.SemanticWeight = weight
	}

	response, err := cli.NewClient(*serverURL, "").Search(context.Background(), query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(os.Stdout, response, format)
}

func runImport(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	sheet := fs.String("sheet", "", "sheet name (default: first sheet)")
	retrain := fs.Bool("retrain", false, "retrain and persist the model after importing")
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: fransearch import [flags] <file.xlsx>")
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	rows, err := importer.ReadFile(fs.Arg(0), *sheet)
	if err != nil {
		return err
	}
	ctx := context.Background()
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	res, err := importer.Import(app.Store, rows)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d listings into %s (dataset version %d)\n", len(res.Imported), cfg.Dataset.Path, app.Store.Version())
	for _, s := range res.Skipped {
		fmt.Printf("  skipped row %d: %s\n", s.Row, s.Err)
	}
	if *retrain && len(res.Imported) > 0 {
		return retrainAndReport(ctx, app)
	}
	return nil
}

func runRetrain(args []string) error {
	fs := flag.NewFlagSet("retrain", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(args)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg, false)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	app, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()
	return retrainAndReport(ctx, app)
}

func retrainAndReport(ctx context.Context, app *App) error {
	start := time.Now()
	b, err := app.Manager.Retrain(ctx)
	if err != nil {
		return fmt.Errorf("retrain failed: %w", err)
	}
	fmt.Printf("Trained bundle %s on %d listings (dataset version %d) in %s\n",
		b.ID, b.Len(), b.DatasetVersion, time.Since(start).Round(time.Millisecond))
	if app.Manager.BackupEnabled() {
		fmt.Println("Bundle uploaded to remote backup")
	}
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	serverURL := fs.String("server", "", "server URL (empty = read local files)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		return err
	}
	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var report *cli.StatusReport
	if *serverURL != "" {
		report, err = cli.NewClient(*serverURL, cfg.Admin.APIKey).Status(context.Background())
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
	} else {
		if report, err = localStatus(context.Background(), cfg); err != nil {
			return err
		}
	}
	return cli.WriteStatus(os.Stdout, report, format)
}

// localStatus reads the dataset and the persisted bundle without training
// or downloading.
func localStatus(ctx context.Context, cfg *config.Config) (*cli.StatusReport, error) {
	app, err := newApp(ctx, cfg, zap.NewNop(), withStrategies(model.LocalOnly))
	if err != nil {
		return nil, err
	}
	defer app.Close()
	// A missing or unusable local bundle shows up as state "empty".
	_ = app.Manager.Initialize(ctx)
	return &cli.StatusReport{Dataset: app.Store.Stats(), Model: app.Manager.Status()}, nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := fs.String("config", "", "config file path")
	_ = fs.Parse(args)

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	data, err := config.Marshal(cfg)
	if err != nil {
		return err
	}
	if resolved != "" {
		fmt.Printf("# loaded from %s\n", resolved)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func printUsage() {
	fmt.Println(`fransearch - Hybrid search service for franchise listings

Usage:
  fransearch [server] [flags]         Start the HTTP server (default)
  fransearch search [flags] <query>   Query a running server
  fransearch import [flags] <file>    Append listings from an .xlsx file
  fransearch retrain [flags]          Train and persist the model bundle
  fransearch status [flags]           Show dataset and model status
  fransearch config [flags]           Print the effective configuration
  fransearch version                  Show version
  fransearch help                     Show this help

Common Flags:
  --config string    Config file path (default: fransearch.yaml, config/fransearch.yaml, ~/.config/fransearch/config.yaml)

Server Flags:
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:5000)
  --top-n int        Number of results
  --weight float     Semantic weight in [0, 1]
  --sector, --location, --tags   Result filters
  --output string    Output format: text, compact, or json (default: text)

Import Flags:
  --sheet string     Sheet name (default: first sheet)
  --retrain          Retrain after importing

Status Flags:
  --server string    Query a running server instead of local files (uses admin.api_key)
  --output string    Output format: text or json (default: text)

Environment:
  FRANSEARCH_<SECTION>__<KEY> overrides config values, e.g. FRANSEARCH_SEARCH__MAX_TOP_N=20.
  A .env file in the working directory is loaded first.

Examples:
  fransearch server --config fransearch.yaml
  fransearch search "pizza delivery"
  fransearch search --output json --top-n 5 coffee
  fransearch import listings.xlsx --retrain
  fransearch status --output json`)
}
