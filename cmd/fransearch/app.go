package main

import (
	"context"
	"fmt"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/fransearch/internal/backup"
	"github.com/hyperjump/fransearch/internal/config"
	"github.com/hyperjump/fransearch/internal/dataset"
	"github.com/hyperjump/fransearch/internal/embedding"
	"github.com/hyperjump/fransearch/internal/metrics"
	"github.com/hyperjump/fransearch/internal/model"
	"github.com/hyperjump/fransearch/internal/search"
	"github.com/hyperjump/fransearch/internal/storage"
	"github.com/hyperjump/fransearch/internal/vector"
)

// App holds the wired components shared by the subcommands.
type App struct {
	Config  *config.Config
	Store   *dataset.Store
	Encoder embedding.Encoder
	RunLog  *storage.SQLiteStorage
	Backup  *backup.Service
	Manager *model.Manager
	Engine  *search.Engine
}

// Close releases the encoder, run log and remote store.
func (a *App) Close() {
	if a.Backup != nil {
		_ = a.Backup.Close()
	}
	if a.RunLog != nil {
		_ = a.RunLog.Close()
	}
	if a.Encoder != nil {
		_ = a.Encoder.Close()
	}
}

type appOption func(*appOptions)

type appOptions struct {
	strategies func(m *model.Manager) []model.Strategy
}

// withStrategies overrides the manager's initialize chain.
func withStrategies(build func(m *model.Manager) []model.Strategy) appOption {
	return func(o *appOptions) { o.strategies = build }
}

// newApp loads the dataset and wires the encoder, manager and engine. The
// manager is left uninitialized.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...appOption) (*App, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}
	app := &App{Config: cfg}

	app.Store = dataset.New(cfg.Dataset.Path, dataset.WithLogger(logger))
	if err := app.Store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	metrics.DatasetVersion.Set(float64(app.Store.Version()))

	enc, err := embedding.New(embedding.Options{
		Backend:         cfg.Embedding.Backend,
		ModelPath:       cfg.Embedding.ModelPath,
		Dimensions:      cfg.Embedding.Dimensions,
		MaxTokens:       cfg.Embedding.MaxTokens,
		CacheSize:       cfg.Embedding.CacheSize,
		Workers:         cfg.Embedding.Workers,
		Timeout:         cfg.Embedding.Timeout,
		BreakerFailures: cfg.Embedding.BreakerFailures,
		BreakerOpen:     cfg.Embedding.BreakerOpen,
		OnBreakerChange: func(_, to gobreaker.State) {
			metrics.EncoderBreakerState.Set(float64(to))
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	app.Encoder = enc

	if app.RunLog, err = storage.NewSQLiteStorage(cfg.Models.RunLogPath); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to open training run log: %w", err)
	}

	managerOpts := []model.Option{model.WithRunLog(app.RunLog), model.WithLogger(logger)}
	if cfg.Backup.Enabled {
		remote, err := backup.NewRemoteStore(ctx, backup.StoreConfig{
			Backend:  cfg.Backup.Backend,
			Bucket:   cfg.Backup.Bucket,
			Region:   cfg.Backup.Region,
			Endpoint: cfg.Backup.Endpoint,
			Dir:      cfg.Backup.Dir,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("failed to initialize backup store: %w", err)
		}
		app.Backup = backup.NewService(remote,
			backup.WithPrefix(cfg.Backup.Prefix),
			backup.WithKeepVersions(cfg.Backup.KeepVersions),
			backup.WithDescription(cfg.Backup.Backend, cfg.Backup.Bucket),
			backup.WithLogger(logger),
		)
		managerOpts = append(managerOpts, model.WithBackup(app.Backup))
	}
	if o.strategies != nil {
		managerOpts = append(managerOpts, model.WithStrategies(o.strategies))
	}

	trainer := &model.Trainer{
		Encoder:     enc,
		IndexType:   cfg.Models.IndexType,
		MaxFeatures: cfg.Models.MaxFeatures,
		NGramMax:    cfg.Models.NGramMax,
		Logger:      logger,
	}
	app.Manager = model.NewManager(app.Store, trainer, cfg.Models.Dir, managerOpts...)

	transform, err := vector.ParseTransform(cfg.Search.Transform)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Engine = search.NewEngine(app.Store, app.Manager, enc, search.Options{
		DefaultSemanticWeight: cfg.Search.SemanticWeight,
		DefaultTopN:           cfg.Search.DefaultTopN,
		MaxTopN:               cfg.Search.MaxTopN,
		Transform:             transform,
		SpellCheck:            cfg.Search.SpellCheck,
	}, logger)

	logger.Info("components initialized",
		zap.String("dataset", cfg.Dataset.Path),
		zap.Int("listings", app.Store.Snapshot().Len()),
		zap.String("encoder", enc.Model()),
		zap.String("index_type", cfg.Models.IndexType),
		zap.Bool("faiss_available", vector.IsFAISSAvailable()),
		zap.Bool("backup_enabled", cfg.Backup.Enabled))
	return app, nil
}
