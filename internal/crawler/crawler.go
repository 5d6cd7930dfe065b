package crawler

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
)

// Result reports what a category crawl produced.
type Result struct {
	Links       []catalog.ProductLink
	TotalPages  int
	PagesOK     int
	PagesFailed int
	// Aborted is set when the category was abandoned after page 1.
	Aborted bool
}

// Crawler collects product links from paginated category listings.
// A Crawler is safe for concurrent use; it holds no per-crawl state.
type Crawler struct {
	cfg    Config
	logger *zap.Logger
	pauser pauseController
}

// New builds a Crawler.
func New(cfg Config, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Crawler{
		cfg:    cfg.withDefaults(),
		logger: logger,
		pauser: &timerPauseController{},
	}
}

// Crawl returns every product link found across the category's pages.
func (c *Crawler) Crawl(ctx context.Context, browser catalog.Browser, category catalog.CategoryURL) ([]catalog.ProductLink, error) {
	res, err := c.CrawlCategory(ctx, browser, category)
	return res.Links, err
}

// CrawlCategory crawls one category and reports per-page counters.
// The error is non-nil only for catalog.ErrEndpointUnreachable or context
// cancellation; the partial Result is still returned in that case.
func (c *Crawler) CrawlCategory(ctx context.Context, browser catalog.Browser, category catalog.CategoryURL) (Result, error) {
	logger := c.logger.With(zap.String("category", string(category)))
	var res Result

	first, err := catalog.PageURL(category, c.cfg.PageParam, 1)
	if err != nil {
		logger.Warn("invalid category url", zap.Error(err))
		metrics.ObserveFault(metrics.FaultCategory)
		res.Aborted = true
		return res, nil
	}

	doc, pageURL, err := c.load(ctx, browser, first, c.cfg.PaginationSelector)
	if err != nil {
		res.PagesFailed++
		if catalog.IsFatal(ctx, err) {
			return res, err
		}
		logger.Warn("first page failed, skipping category", zap.Error(err))
		metrics.ObserveFault(metrics.FaultCategory)
		res.Aborted = true
		return res, nil
	}

	total, err := c.guardedPageCount(doc)
	if err != nil {
		res.PagesFailed++
		logger.Warn("page count unreadable, skipping category", zap.Error(err))
		metrics.ObserveFault(metrics.FaultCategory)
		res.Aborted = true
		return res, nil
	}
	if total == 0 {
		total = 1
	}
	res.TotalPages = total

	res.Links = append(res.Links, c.collect(logger, doc, pageURL, 1, &res)...)

	for n := 2; n <= total; n++ {
		if err := c.pause(ctx); err != nil {
			return res, err
		}
		target, err := catalog.PageURL(category, c.cfg.PageParam, n)
		if err != nil {
			res.PagesFailed++
			continue
		}
		doc, pageURL, err := c.load(ctx, browser, target, c.cfg.ProductSelector)
		if err != nil {
			res.PagesFailed++
			if catalog.IsFatal(ctx, err) {
				return res, err
			}
			logger.Warn("page failed, continuing", zap.Int("page", n), zap.Error(err))
			metrics.ObserveFault(metrics.FaultPage)
			continue
		}
		res.Links = append(res.Links, c.collect(logger, doc, pageURL, n, &res)...)
	}

	logger.Info("category crawled",
		zap.Int("pages", total),
		zap.Int("pages_failed", res.PagesFailed),
		zap.Int("links", len(res.Links)),
	)
	return res, nil
}

// load opens one listing page and parses it. The returned URL is the one
// relative hrefs resolve against.
func (c *Crawler) load(ctx context.Context, browser catalog.Browser, target, waitSelector string) (*goquery.Document, string, error) {
	page, err := browser.Open(ctx, catalog.PageRequest{
		URL:          target,
		WaitSelector: waitSelector,
		WaitTimeout:  c.cfg.WaitTimeout,
	})
	if err != nil {
		metrics.ObservePage(metrics.PhaseDiscovery, false)
		return nil, "", err
	}
	doc, err := parseDocument(page.HTML)
	if err != nil {
		metrics.ObservePage(metrics.PhaseDiscovery, false)
		return nil, "", fmt.Errorf("%w: %s: %w", catalog.ErrPageLoad, target, err)
	}
	metrics.ObservePage(metrics.PhaseDiscovery, true)
	base := page.FinalURL
	if base == "" {
		base = target
	}
	return doc, base, nil
}

// collect extracts product links from a parsed page, treating a panic as a
// page fault that contributes nothing.
func (c *Crawler) collect(logger *zap.Logger, doc *goquery.Document, pageURL string, n int, res *Result) (links []catalog.ProductLink) {
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("page parse panicked", zap.Int("page", n), zap.Any("panic", r))
			metrics.ObserveFault(metrics.FaultPage)
			res.PagesFailed++
			links = nil
		}
	}()
	links = productLinks(doc, c.cfg.ProductSelector, pageURL)
	res.PagesOK++
	return links
}

func (c *Crawler) guardedPageCount(doc *goquery.Document) (total int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic reading pagination: %v", catalog.ErrPageCount, r)
		}
	}()
	return pageCount(doc, c.cfg.PaginationSelector)
}

func (c *Crawler) pause(ctx context.Context) error {
	delay := randomDelay(c.cfg.MinDelay, c.cfg.MaxDelay)
	c.pauser.Pause(ctx, delay)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl canceled: %w", err)
	}
	return nil
}

