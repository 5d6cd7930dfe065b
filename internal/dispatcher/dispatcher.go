// Package dispatcher fans one phase out over a fixed set of shard workers.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
)

// BrowserSource hands out the browser bound to a worker index.
type BrowserSource interface {
	BrowserFor(worker int) catalog.Browser
}

// Task processes one shard with the browser bound to it.
type Task func(ctx context.Context, shard int, browser catalog.Browser) (catalog.PhaseSummary, error)

// ShardResult reports how one shard ended.
type ShardResult struct {
	Shard   int
	Summary catalog.PhaseSummary
	Err     error
}

// Dispatcher starts one goroutine per shard and waits for all of them.
type Dispatcher struct {
	browsers BrowserSource
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(browsers BrowserSource, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{browsers: browsers, logger: logger}
}

// Run executes task once per shard in [0, shards) and blocks until every
// shard returns, even after ctx is canceled. A panicking shard is reported
// as an error; siblings are unaffected.
func (d *Dispatcher) Run(ctx context.Context, phase string, shards int, task Task) []ShardResult {
	results := make([]ShardResult, shards)
	var wg sync.WaitGroup
	for i := 0; i < shards; i++ {
		browser := d.browsers.BrowserFor(i)
		wg.Add(1)
		go func(shard int) {
			defer wg.Done()
			results[shard] = d.runShard(ctx, phase, shard, browser, task)
		}(i)
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) runShard(
	ctx context.Context,
	phase string,
	shard int,
	browser catalog.Browser,
	task Task,
) (res ShardResult) {
	logger := d.logger.With(zap.String("phase", phase), zap.Int("worker", shard))
	start := time.Now()
	metrics.IncActiveWorkers(phase)
	defer metrics.DecActiveWorkers(phase)

	res.Shard = shard
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("worker %d panicked: %v", shard, r)
			logger.Error("worker panicked", zap.Any("panic", r))
		}
		if res.Err != nil {
			res.Summary.ShardsFailed = 1
		}
		res.Summary.Duration = time.Since(start)
	}()

	logger.Debug("worker started")
	summary, err := task(ctx, shard, browser)
	res.Summary = summary
	res.Err = err
	if err != nil {
		logger.Warn("worker stopped early", zap.Error(err), zap.Int("items", summary.Items))
	} else {
		logger.Info("worker finished", zap.Int("items", summary.Items), zap.Int("appended", summary.Appended))
	}
	return res
}

// Merge folds shard results into one phase summary.
func Merge(results []ShardResult) catalog.PhaseSummary {
	total := catalog.PhaseSummary{Workers: len(results)}
	for _, r := range results {
		total.Add(r.Summary)
	}
	return total
}
