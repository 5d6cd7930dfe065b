// Package worker holds the per-shard loops of the discovery and extraction
// phases. A worker owns one shard and one browser for its whole life.
package worker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/crawler"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
)

// CategoryCrawler crawls one category listing to completion.
type CategoryCrawler interface {
	CrawlCategory(ctx context.Context, browser catalog.Browser, category catalog.CategoryURL) (crawler.Result, error)
}

// ProductExtractor turns one product link into a record.
type ProductExtractor interface {
	Extract(ctx context.Context, browser catalog.Browser, link catalog.ProductLink) (catalog.ProductRecord, error)
}

// Discoverer crawls a shard of categories and appends each category's links
// as soon as that category finishes.
type Discoverer struct {
	crawler CategoryCrawler
	links   catalog.LinkStore
	logger  *zap.Logger
}

// NewDiscoverer creates a Discoverer.
func NewDiscoverer(c CategoryCrawler, links catalog.LinkStore, logger *zap.Logger) *Discoverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Discoverer{crawler: c, links: links, logger: logger}
}

// Run processes categories in order. It returns an error only when the
// browser endpoint is unreachable or ctx is done; links appended before
// that point stay in the store.
func (d *Discoverer) Run(ctx context.Context, browser catalog.Browser, categories []catalog.CategoryURL) (catalog.PhaseSummary, error) {
	var summary catalog.PhaseSummary
	for _, category := range categories {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger := d.logger.With(zap.String("category", string(category)))

		res, err := d.crawler.CrawlCategory(ctx, browser, category)
		summary.Items++
		summary.PagesOK += res.PagesOK
		summary.PagesFailed += res.PagesFailed
		d.appendLinks(ctx, logger, res.Links, &summary)

		if err != nil {
			if errors.Is(err, catalog.ErrEndpointUnreachable) {
				metrics.ObserveFault(metrics.FaultEndpoint)
				logger.Error("browser endpoint unreachable, abandoning shard", zap.Error(err))
			}
			return summary, fmt.Errorf("crawl %s: %w", category, err)
		}
	}
	return summary, nil
}

func (d *Discoverer) appendLinks(ctx context.Context, logger *zap.Logger, links []catalog.ProductLink, summary *catalog.PhaseSummary) {
	if len(links) == 0 {
		return
	}
	// A canceled ctx must not drop links that were already collected.
	if err := d.links.Append(context.WithoutCancel(ctx), links...); err != nil {
		logger.Error("failed to append links", zap.Int("links", len(links)), zap.Error(err))
		summary.Skipped += len(links)
		return
	}
	summary.Appended += len(links)
	metrics.AddLinksDiscovered(len(links))
}

// Harvester extracts a shard of product links and appends one record per link.
type Harvester struct {
	extractor ProductExtractor
	sink      catalog.ProductSink
	logger    *zap.Logger
}

// NewHarvester creates a Harvester.
func NewHarvester(e ProductExtractor, sink catalog.ProductSink, logger *zap.Logger) *Harvester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{extractor: e, sink: sink, logger: logger}
}

// Run extracts links in order. A link that fails is logged and skipped; only
// an unreachable endpoint or a done ctx stops the shard early.
func (h *Harvester) Run(ctx context.Context, browser catalog.Browser, links []catalog.ProductLink) (catalog.PhaseSummary, error) {
	var summary catalog.PhaseSummary
	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger := h.logger.With(zap.String("link", string(link)))
		summary.Items++

		record, err := h.extractor.Extract(ctx, browser, link)
		if err != nil {
			summary.PagesFailed++
			if catalog.IsFatal(ctx, err) {
				if errors.Is(err, catalog.ErrEndpointUnreachable) {
					metrics.ObserveFault(metrics.FaultEndpoint)
					logger.Error("browser endpoint unreachable, abandoning shard", zap.Error(err))
				}
				return summary, fmt.Errorf("extract %s: %w", link, err)
			}
			logger.Warn("extraction failed, skipping link", zap.Error(err))
			metrics.ObserveFault(metrics.FaultLink)
			metrics.ObserveProduct("skipped")
			summary.Skipped++
			continue
		}
		summary.PagesOK++

		if err := h.sink.Append(context.WithoutCancel(ctx), record); err != nil {
			logger.Error("failed to append product", zap.Error(err))
			metrics.ObserveProduct("skipped")
			summary.Skipped++
			continue
		}
		metrics.ObserveProduct("written")
		summary.Appended++
	}
	return summary, nil
}
