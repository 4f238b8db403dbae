// Package app assembles the service from configuration. The API server, the
// worker and the CLI all start from New.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-categorizer/internal/categorizer"
	"github.com/dvloznov/statement-categorizer/internal/config"
	"github.com/dvloznov/statement-categorizer/internal/gcsuploader"
	infraBQ "github.com/dvloznov/statement-categorizer/internal/infra/bigquery"
	"github.com/dvloznov/statement-categorizer/internal/infra/cache"
	"github.com/dvloznov/statement-categorizer/internal/infra/memory"
	"github.com/dvloznov/statement-categorizer/internal/infra/postgres"
	"github.com/dvloznov/statement-categorizer/internal/jobs"
	"github.com/dvloznov/statement-categorizer/internal/jobs/inmemory"
	"github.com/dvloznov/statement-categorizer/internal/logger"
	"github.com/dvloznov/statement-categorizer/internal/notionsync"
	"github.com/dvloznov/statement-categorizer/internal/pipeline"
	"github.com/dvloznov/statement-categorizer/internal/store"
	"github.com/rs/zerolog"
)

// App holds the wired components. Optional parts are nil when unconfigured.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Store    store.Store
	Service  *pipeline.Service
	Engine   *categorizer.Engine
	JobStore *inmemory.Store
	Queue    *inmemory.Queue
	Archiver *gcsuploader.Archiver
	Syncer   *notionsync.Syncer

	closers []func() error
}

// New wires every component described by cfg.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	log := logger.NewWithOptions(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	ctx = logger.WithContext(ctx, log)
	a := &App{Config: cfg, Log: log}

	st, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)

	rules, err := categorizer.NewRuleSet(cfg.RuleBook(), cfg.Categorizer.RuleConfidence)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("app.New: %w", err)
	}

	predictor, err := NewPredictor(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Engine = categorizer.NewEngine(st, rules, predictor, categorizer.Config{
		MLTimeout:   cfg.Categorizer.MLTimeout,
		Concurrency: cfg.Categorizer.Concurrency,
	})

	var opts []pipeline.Option
	if cfg.GCS.Bucket != "" {
		arch, err := gcsuploader.NewArchiver(ctx, cfg.GCS.Bucket)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.Archiver = arch
		a.closers = append(a.closers, arch.Close)
		opts = append(opts, pipeline.WithArchiver(arch))
	} else {
		log.Warn().Msg("No GCS bucket configured - statement files will not be archived")
	}
	a.Service = pipeline.NewService(st, a.Engine, opts...)

	if cfg.Notion.Token != "" {
		a.Syncer = notionsync.NewSyncer(notionsync.NewNotionClient(cfg.Notion.Token), cfg.Notion.DatabaseID, false)
	}

	a.JobStore = inmemory.NewStore()
	a.Queue = inmemory.NewQueue(cfg.Jobs.QueueSize, a.JobStore, inmemory.Options{
		Workers:    cfg.Jobs.Workers,
		MaxRetries: cfg.Jobs.MaxRetries,
	})
	a.closers = append(a.closers, a.Queue.Close)

	log.Info().
		Str("store", cfg.Store.Backend).
		Bool("cache", cfg.Store.CacheSize > 0).
		Int("rules", rules.Len()).
		Bool("ml", cfg.Categorizer.GeminiAPIKey != "").
		Bool("notion", a.Syncer != nil).
		Msg("Application wired")
	return a, nil
}

// StartWorkers begins consuming categorization jobs.
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Queue.Start(logger.WithContext(ctx, a.Log), jobs.CategorizeHandler(a.Service.Categorize))
}

// Close releases components in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the configured backend, wrapped in the read cache unless
// the cache is disabled.
func OpenStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Backend {
	case config.BackendMemory:
		st = memory.NewStore()
	case config.BackendPostgres:
		st, err = postgres.NewStore(ctx, cfg.Store.DatabaseURL)
	case config.BackendBigQuery:
		st, err = infraBQ.NewBigQueryStore(ctx, cfg.Store.BigQueryProject, cfg.Store.BigQueryDataset)
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("OpenStore: %w", err)
	}

	if cfg.Store.CacheSize <= 0 {
		return st, nil
	}
	cached, err := cache.New(st, cache.Config{NumCounters: cfg.Store.CacheSize * 10, MaxCost: cfg.Store.CacheSize})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("OpenStore: %w", err)
	}
	return cached, nil
}

// NewPredictor returns the Gemini predictor when an API key is configured.
// Without one every ML call degrades.
func NewPredictor(ctx context.Context, cfg *config.Config) (categorizer.Predictor, error) {
	if cfg.Categorizer.GeminiAPIKey == "" {
		log := logger.FromContext(ctx)
		log.Warn().Msg("No Gemini API key configured - rule misses will be labeled Other")
		return categorizer.Unavailable, nil
	}
	p, err := categorizer.NewGeminiPredictor(ctx, cfg.Categorizer.GeminiAPIKey, cfg.Categorizer.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("NewPredictor: %w", err)
	}
	return p.WithRetryConfig(cfg.RetryConfig()), nil
}
