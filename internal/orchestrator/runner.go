// Package orchestrator drives a harvest run through its discovery and
// extraction phases.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/dispatcher"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/partition"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/worker"
)

const finishTimeout = 30 * time.Second

// CategorySource resolves the categories a run crawls.
type CategorySource interface {
	Categories(ctx context.Context, browser catalog.Browser) ([]catalog.CategoryURL, error)
}

// Clock supplies wall time and cancellable waits.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Config sizes the phases and names run artifacts.
type Config struct {
	DiscoveryWorkers  int
	ExtractionWorkers int
	// PhaseGap is the pause between discovery and extraction.
	PhaseGap      time.Duration
	ArchivePrefix string
	NotifyTopic   string
}

// Deps are the collaborators a Runner needs. Runs, Archive and Publisher are optional.
type Deps struct {
	Browsers   dispatcher.BrowserSource
	Categories CategorySource
	Crawler    worker.CategoryCrawler
	Extractor  worker.ProductExtractor
	Links      catalog.LinkStore
	Products   catalog.ProductSink
	Runs       catalog.RunStore
	Archive    catalog.BlobStore
	Snapshots  []catalog.Snapshotter
	Publisher  catalog.Publisher
	Clock      Clock
	IDs        catalog.IDGenerator
	Logger     *zap.Logger
}

// Status is a point-in-time view of the runner.
type Status struct {
	State   catalog.RunState    `json:"state"`
	RunID   string              `json:"run_id,omitempty"`
	Started time.Time           `json:"started_at,omitempty"`
	Last    *catalog.RunSummary `json:"last_run,omitempty"`
}

// Runner owns the run state machine. At most one run is active at a time.
type Runner struct {
	cfg        Config
	deps       Deps
	dispatcher *dispatcher.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	state   catalog.RunState
	runID   string
	started time.Time
	last    *catalog.RunSummary
}

// New validates deps and creates an idle Runner.
func New(cfg Config, deps Deps) (*Runner, error) {
	switch {
	case deps.Browsers == nil:
		return nil, errors.New("browser pool is required")
	case deps.Categories == nil:
		return nil, errors.New("category source is required")
	case deps.Crawler == nil || deps.Extractor == nil:
		return nil, errors.New("crawler and extractor are required")
	case deps.Links == nil || deps.Products == nil:
		return nil, errors.New("link store and product sink are required")
	case deps.Clock == nil || deps.IDs == nil:
		return nil, errors.New("clock and id generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DiscoveryWorkers <= 0 {
		cfg.DiscoveryWorkers = 1
	}
	if cfg.ExtractionWorkers <= 0 {
		cfg.ExtractionWorkers = 1
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "runs"
	}
	return &Runner{
		cfg:        cfg,
		deps:       deps,
		dispatcher: dispatcher.New(deps.Browsers, deps.Logger.Named("dispatcher")),
		logger:     deps.Logger,
		state:      catalog.RunStateIdle,
	}, nil
}

// Status reports the current state and the last finished run.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{State: r.state, RunID: r.runID, Started: r.started}
	if r.last != nil {
		last := *r.last
		st.Last = &last
	}
	return st
}

// State returns the current run state.
func (r *Runner) State() catalog.RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) begin(state catalog.RunState) (string, time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != catalog.RunStateIdle {
		return "", time.Time{}, fmt.Errorf("%w: %s (run %s)", catalog.ErrRunInProgress, r.state, r.runID)
	}
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("new run id: %w", err)
	}
	r.state = state
	r.runID = id
	r.started = r.deps.Clock.Now()
	return r.runID, r.started, nil
}

func (r *Runner) transition(state catalog.RunState) {
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
}

func (r *Runner) end(summary *catalog.RunSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = catalog.RunStateIdle
	r.runID = ""
	r.started = time.Time{}
	if summary != nil {
		s := *summary
		r.last = &s
	}
}

// RunOnce executes discovery, waits PhaseGap, then executes extraction.
// It returns catalog.ErrRunInProgress when another run is active. The
// summary is archived and published even when the run stops early.
func (r *Runner) RunOnce(ctx context.Context) (catalog.RunSummary, error) {
	runID, started, err := r.begin(catalog.RunStateDiscovering)
	if err != nil {
		return catalog.RunSummary{}, err
	}
	return r.runBoth(ctx, runID, started)
}

// Start claims the runner and executes a full run in the background,
// returning the new run id. Errors of the background run are logged.
func (r *Runner) Start(ctx context.Context) (string, error) {
	runID, started, err := r.begin(catalog.RunStateDiscovering)
	if err != nil {
		return "", err
	}
	go func() {
		if _, err := r.runBoth(ctx, runID, started); err != nil {
			r.logger.Warn("background run stopped", zap.String("run_id", runID), zap.Error(err))
		}
	}()
	return runID, nil
}

func (r *Runner) runBoth(ctx context.Context, runID string, started time.Time) (catalog.RunSummary, error) {
	summary := catalog.RunSummary{RunID: runID, Started: started}
	defer func() { r.end(&summary) }()

	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("run started")

	var err error
	summary.Discovery, err = r.discover(ctx, logger)
	if err == nil {
		err = r.deps.Clock.Sleep(ctx, r.cfg.PhaseGap)
	}
	if err == nil {
		r.transition(catalog.RunStateExtracting)
		summary.Extraction, summary.UniqueLinks, err = r.extract(ctx, logger)
	}

	r.finish(ctx, logger, &summary, err)
	return summary, err
}

// Discover runs the discovery phase alone.
func (r *Runner) Discover(ctx context.Context) (catalog.RunSummary, error) {
	runID, started, err := r.begin(catalog.RunStateDiscovering)
	if err != nil {
		return catalog.RunSummary{}, err
	}
	summary := catalog.RunSummary{RunID: runID, Started: started}
	defer func() { r.end(&summary) }()

	logger := r.logger.With(zap.String("run_id", runID))
	summary.Discovery, err = r.discover(ctx, logger)
	r.finish(ctx, logger, &summary, err)
	return summary, err
}

// Extract runs the extraction phase alone over the current link store.
func (r *Runner) Extract(ctx context.Context) (catalog.RunSummary, error) {
	runID, started, err := r.begin(catalog.RunStateExtracting)
	if err != nil {
		return catalog.RunSummary{}, err
	}
	summary := catalog.RunSummary{RunID: runID, Started: started}
	defer func() { r.end(&summary) }()

	logger := r.logger.With(zap.String("run_id", runID))
	summary.Extraction, summary.UniqueLinks, err = r.extract(ctx, logger)
	r.finish(ctx, logger, &summary, err)
	return summary, err
}

func (r *Runner) discover(ctx context.Context, logger *zap.Logger) (catalog.PhaseSummary, error) {
	start := time.Now()
	defer func() { metrics.ObservePhase(metrics.PhaseDiscovery, time.Since(start)) }()

	categories, err := r.deps.Categories.Categories(ctx, r.deps.Browsers.BrowserFor(0))
	if err != nil {
		return catalog.PhaseSummary{}, fmt.Errorf("resolve categories: %w", err)
	}
	if err := r.deps.Links.Reset(ctx); err != nil {
		return catalog.PhaseSummary{}, fmt.Errorf("reset link store: %w", err)
	}

	workers := r.cfg.DiscoveryWorkers
	shards := partition.Partition(categories, workers)
	logger.Info("discovery started",
		zap.Int("categories", len(categories)),
		zap.Int("workers", workers),
		zap.Ints("shard_sizes", partition.Sizes(len(categories), workers)),
	)

	results := r.dispatcher.Run(ctx, metrics.PhaseDiscovery, workers,
		func(ctx context.Context, shard int, browser catalog.Browser) (catalog.PhaseSummary, error) {
			d := worker.NewDiscoverer(r.deps.Crawler, r.deps.Links, logger.With(zap.Int("worker", shard)))
			return d.Run(ctx, browser, shards[shard])
		})
	summary := r.collect(logger, metrics.PhaseDiscovery, results, start)
	return summary, ctx.Err()
}

func (r *Runner) extract(ctx context.Context, logger *zap.Logger) (catalog.PhaseSummary, int, error) {
	start := time.Now()
	defer func() { metrics.ObservePhase(metrics.PhaseExtraction, time.Since(start)) }()

	if err := r.deps.Products.Reset(ctx); err != nil {
		return catalog.PhaseSummary{}, 0, fmt.Errorf("reset product sink: %w", err)
	}
	links, err := r.deps.Links.LoadDeduplicated(ctx)
	if err != nil {
		return catalog.PhaseSummary{}, 0, fmt.Errorf("load links: %w", err)
	}

	workers := r.cfg.ExtractionWorkers
	shards := partition.Partition(links, workers)
	logger.Info("extraction started",
		zap.Int("links", len(links)),
		zap.Int("workers", workers),
		zap.Ints("shard_sizes", partition.Sizes(len(links), workers)),
	)

	results := r.dispatcher.Run(ctx, metrics.PhaseExtraction, workers,
		func(ctx context.Context, shard int, browser catalog.Browser) (catalog.PhaseSummary, error) {
			h := worker.NewHarvester(r.deps.Extractor, r.deps.Products, logger.With(zap.Int("worker", shard)))
			return h.Run(ctx, browser, shards[shard])
		})
	summary := r.collect(logger, metrics.PhaseExtraction, results, start)
	return summary, len(links), ctx.Err()
}

func (r *Runner) collect(logger *zap.Logger, phase string, results []dispatcher.ShardResult, start time.Time) catalog.PhaseSummary {
	summary := dispatcher.Merge(results)
	summary.Duration = time.Since(start)
	for _, res := range results {
		if res.Err != nil {
			logger.Warn("shard failed", zap.String("phase", phase), zap.Int("worker", res.Shard), zap.Error(res.Err))
		}
	}
	logger.Info("phase finished",
		zap.String("phase", phase),
		zap.Int("items", summary.Items),
		zap.Int("appended", summary.Appended),
		zap.Int("skipped", summary.Skipped),
		zap.Int("shards_failed", summary.ShardsFailed),
		zap.Duration("duration", summary.Duration),
	)
	return summary
}

// finish archives, records and publishes the run. It runs detached from
// ctx so an interrupted run still leaves a summary behind.
func (r *Runner) finish(ctx context.Context, logger *zap.Logger, summary *catalog.RunSummary, runErr error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	summary.Finished = r.deps.Clock.Now()
	summary.Status = runStatus(summary, runErr)
	if runErr != nil {
		summary.ErrorText = runErr.Error()
	}

	summary.Artifacts = r.archive(fctx, logger, summary.RunID)

	if r.deps.Runs != nil {
		if err := r.deps.Runs.SaveRun(fctx, *summary); err != nil {
			logger.Error("failed to save run summary", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil {
		if id, err := r.deps.Publisher.Publish(fctx, r.cfg.NotifyTopic, *summary); err != nil {
			logger.Error("failed to publish run summary", zap.Error(err))
		} else {
			logger.Debug("run summary published", zap.String("message_id", id))
		}
	}

	metrics.ObserveRun(string(summary.Status))
	logger.Info("run finished",
		zap.String("status", string(summary.Status)),
		zap.Int("unique_links", summary.UniqueLinks),
		zap.Int("products", summary.Extraction.Appended),
		zap.Duration("elapsed", summary.Finished.Sub(summary.Started)),
	)
}

func (r *Runner) archive(ctx context.Context, logger *zap.Logger, runID string) []string {
	if r.deps.Archive == nil {
		return nil
	}
	var uris []string
	for _, snap := range r.deps.Snapshots {
		name, body, err := snap.Snapshot(ctx)
		if err != nil {
			logger.Warn("snapshot failed", zap.Error(err))
			continue
		}
		key := path.Join(r.cfg.ArchivePrefix, runID, name)
		uri, err := r.deps.Archive.PutObject(ctx, key, contentType(name), body)
		_ = body.Close()
		if err != nil {
			logger.Warn("archive upload failed", zap.String("object", key), zap.Error(err))
			continue
		}
		uris = append(uris, uri)
	}
	return uris
}

func runStatus(summary *catalog.RunSummary, runErr error) catalog.RunStatus {
	switch {
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		return catalog.RunStatusCanceled
	case runErr != nil:
		return catalog.RunStatusFailed
	case summary.Discovery.ShardsFailed+summary.Extraction.ShardsFailed > 0:
		return catalog.RunStatusPartial
	default:
		return catalog.RunStatusOK
	}
}

func contentType(name string) string {
	if strings.HasSuffix(name, ".csv") {
		return "text/csv; charset=utf-8"
	}
	return "application/octet-stream"
}
