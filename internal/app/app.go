// Package app builds the long-lived harvester services from configuration,
// acting as the dependency injection container for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/api"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/browser"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/clock/system"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/config"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/crawler"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/extract"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/id/uuid"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/orchestrator"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/publisher/discord"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/publisher/pubsub"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/publisher/zaplog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/schedule"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/gcs"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/local"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/memory"
	mongostore "github.com/JakeFAU/realtime-cpi-catalog/internal/storage/mongo"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/postgres"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/taxonomy"
)

// Runner is the run orchestrator surface the commands and the API drive.
type Runner interface {
	RunOnce(ctx context.Context) (catalog.RunSummary, error)
	Discover(ctx context.Context) (catalog.RunSummary, error)
	Extract(ctx context.Context) (catalog.RunSummary, error)
	Start(ctx context.Context) (string, error)
	Status() orchestrator.Status
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	clock  *system.Clock

	pool   *browser.Pool
	runs   catalog.RunStore
	runner *orchestrator.Runner

	closers []func() error
}

// Runner returns the run orchestrator.
func (a *App) Runner() Runner {
	return a.runner
}

// ServerEnabled reports whether the watch command should serve HTTP.
func (a *App) ServerEnabled() bool {
	return a.cfg.Server.Enabled
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Watcher builds the schedule watcher from configuration.
func (a *App) Watcher() *schedule.Watcher {
	return schedule.NewWatcher(schedule.Config{
		File:         a.cfg.Schedule.File,
		PollInterval: a.cfg.Schedule.PollInterval(),
	}, a.clock, a.logger.Named("schedule"))
}

// APIServer builds the HTTP surface. Runs it starts are children of runCtx.
func (a *App) APIServer(runCtx context.Context) *api.Server {
	return api.NewServer(a.runner, a.runs, a.logger.Named("api"), api.Options{
		APIKey:     a.cfg.Server.APIKey,
		RunContext: runCtx,
	})
}

// Addr is the listen address of the HTTP surface.
func (a *App) Addr() string {
	return ":" + strconv.Itoa(a.cfg.Server.Port)
}

// New creates and initializes every service selected by cfg. It fails fast
// and releases whatever it already opened when a provider cannot start.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, clock: system.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	logger.Info("initializing application services")

	// 1. Browser endpoints.
	factory := browser.NewFactory(browser.SessionConfig{
		UserAgent:         cfg.Browser.UserAgent,
		NavigationTimeout: cfg.Browser.NavigationTimeout(),
		ConnectTimeout:    cfg.Browser.ConnectTimeout(),
		MaxQPS:            cfg.Browser.MaxQPS,
	}, logger.Named("browser"))
	a.pool, err = browser.NewPool(cfg.Browser.Endpoints, factory, cfg.Browser.MaxQPS)
	if err != nil {
		return nil, fmt.Errorf("init browser pool: %w", err)
	}
	a.closers = append(a.closers, func() error { a.pool.Close(); return nil })

	// 2. Shared Postgres pool, when any store lives there.
	var db postgres.DB
	if cfg.Links.Provider == config.ProviderPostgres ||
		cfg.Products.Provider == config.ProviderPostgres ||
		cfg.Runs.Provider == config.ProviderPostgres {
		pgPool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pgPool.Close(); return nil })
		db = pgPool
	}

	// 3. Stores.
	links, linkSnap, err := a.linkStore(ctx, db)
	if err != nil {
		return nil, err
	}
	products, productSnap, err := a.productSink(ctx, db)
	if err != nil {
		return nil, err
	}
	if a.runs, err = a.runStore(ctx, db); err != nil {
		return nil, err
	}
	var snapshots []catalog.Snapshotter
	for _, s := range []catalog.Snapshotter{linkSnap, productSnap} {
		if s != nil {
			snapshots = append(snapshots, s)
		}
	}

	// 4. Archive and notifications.
	archive, err := a.archive(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}

	// 5. Category source, crawler, extractor and the orchestrator.
	categories, err := a.categorySource()
	if err != nil {
		return nil, err
	}
	minDelay, maxDelay := cfg.Crawler.Delays()
	crawl := crawler.New(crawler.Config{
		PaginationSelector: cfg.Crawler.PaginationSelector,
		ProductSelector:    cfg.Crawler.ProductSelector,
		PageParam:          cfg.Crawler.PageParam,
		WaitTimeout:        cfg.Crawler.WaitTimeout(),
		MinDelay:           minDelay,
		MaxDelay:           maxDelay,
	}, logger.Named("crawler"))
	extractor := extract.New(extract.Config{
		Selectors:   cfg.Extractor.Selectors,
		WaitTimeout: cfg.Extractor.WaitTimeout(),
	}, logger.Named("extract"), a.clock.Now)

	a.runner, err = orchestrator.New(orchestrator.Config{
		DiscoveryWorkers:  cfg.Crawler.Workers,
		ExtractionWorkers: cfg.Extractor.Workers,
		PhaseGap:          cfg.Run.PhaseGap(),
		ArchivePrefix:     cfg.Run.ArchivePrefix,
		NotifyTopic:       cfg.Notify.Topic,
	}, orchestrator.Deps{
		Browsers:   a.pool,
		Categories: categories,
		Crawler:    crawl,
		Extractor:  extractor,
		Links:      links,
		Products:   products,
		Runs:       a.runs,
		Archive:    archive,
		Snapshots:  snapshots,
		Publisher:  publisher,
		Clock:      a.clock,
		IDs:        uuid.New(),
		Logger:     logger.Named("run"),
	})
	if err != nil {
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	logger.Info("application services initialized",
		zap.Int("endpoints", a.pool.Size()),
		zap.String("links", cfg.Links.Provider),
		zap.String("products", cfg.Products.Provider),
		zap.String("archive", cfg.Archive.Provider),
		zap.String("notify", cfg.Notify.Provider),
	)
	return a, nil
}

func (a *App) linkStore(ctx context.Context, db postgres.DB) (catalog.LinkStore, catalog.Snapshotter, error) {
	switch a.cfg.Links.Provider {
	case config.ProviderCSV:
		s, err := local.NewLinkStore(a.cfg.Links.CSV)
		if err != nil {
			return nil, nil, fmt.Errorf("init csv link store: %w", err)
		}
		return s, s, nil
	case config.ProviderPostgres:
		s, err := postgres.NewLinkStore(db, a.cfg.Links.PostgresTable)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.ProviderMemory:
		return memory.NewLinkStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown links provider: %s", a.cfg.Links.Provider)
	}
}

func (a *App) productSink(ctx context.Context, db postgres.DB) (catalog.ProductSink, catalog.Snapshotter, error) {
	switch a.cfg.Products.Provider {
	case config.ProviderCSV:
		s, err := local.NewProductStore(a.cfg.Products.CSV)
		if err != nil {
			return nil, nil, fmt.Errorf("init csv product store: %w", err)
		}
		return s, s, nil
	case config.ProviderPostgres:
		s, err := postgres.NewProductStore(db, a.cfg.Products.PostgresTable)
		if err != nil {
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.ProviderMongo:
		client, err := mongostore.Connect(ctx, a.cfg.Products.Mongo)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		coll := client.Database(a.cfg.Products.Mongo.Database).Collection(a.cfg.Products.Mongo.Collection)
		s, err := mongostore.NewProductStore(coll, a.logger.Named("mongo"))
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	case config.ProviderMemory:
		return memory.NewProductStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown products provider: %s", a.cfg.Products.Provider)
	}
}

func (a *App) runStore(ctx context.Context, db postgres.DB) (catalog.RunStore, error) {
	switch a.cfg.Runs.Provider {
	case config.ProviderPostgres:
		s, err := postgres.NewRunStore(db, a.cfg.Runs.PostgresTable)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.ProviderMemory:
		return memory.NewRunStore(), nil
	default:
		return nil, fmt.Errorf("unknown runs provider: %s", a.cfg.Runs.Provider)
	}
}

func (a *App) archive(ctx context.Context) (catalog.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderGCS:
		client, err := gcs.NewClient(ctx, a.cfg.Archive.GCS)
		if err != nil {
			return nil, err
		}
		store, err := gcs.New(client, a.cfg.Archive.GCS)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	case config.ProviderLocal:
		store, err := local.New(a.cfg.Archive.Local)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive provider: %s", a.cfg.Archive.Provider)
	}
}

func (a *App) publisher(ctx context.Context) (catalog.Publisher, error) {
	switch a.cfg.Notify.Provider {
	case config.ProviderNone, "":
		return nil, nil
	case config.ProviderLog:
		return zaplog.New(a.logger.Named("notify")), nil
	case config.ProviderPubSub:
		client, err := pubsub.Connect(ctx, a.cfg.Notify.ProjectID)
		if err != nil {
			return nil, err
		}
		p := pubsub.New(client, a.cfg.Notify.Topic)
		a.closers = append(a.closers, p.Close)
		return p, nil
	case config.ProviderDiscord:
		p, err := discord.New(a.cfg.Notify.Discord)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown notify provider: %s", a.cfg.Notify.Provider)
	}
}

func (a *App) categorySource() (orchestrator.CategorySource, error) {
	t := a.cfg.Taxonomy
	switch t.Source {
	case config.TaxonomyStatic:
		return taxonomy.Static{BaseURL: t.BaseURL, Paths: t.Paths}, nil
	case config.TaxonomyMenu:
		return taxonomy.NewMenu(taxonomy.MenuConfig{
			PageURL:        t.Menu.PageURL,
			LinkSelector:   t.Menu.LinkSelector,
			PathPrefix:     t.Menu.PathPrefix,
			CategorySuffix: t.Menu.CategorySuffix,
			WaitTimeout:    a.cfg.Crawler.WaitTimeout(),
		}, a.logger.Named("taxonomy")), nil
	case config.TaxonomyTable:
		table, err := local.NewLinkStore(local.LinkStoreConfig{Path: t.TablePath})
		if err != nil {
			return nil, fmt.Errorf("open category table: %w", err)
		}
		return taxonomy.Table{Source: table}, nil
	default:
		return nil, fmt.Errorf("unknown taxonomy source: %s", t.Source)
	}
}

// Close releases every service in reverse order of creation and flushes the logger.
func (a *App) Close() {
	a.logger.Info("shutting down application services")
	if err := closeAll(a.closers); err != nil {
		a.logger.Warn("error closing services", zap.Error(err))
	}
	a.closers = nil
	_ = a.logger.Sync()
}

func closeAll(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
