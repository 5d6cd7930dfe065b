package extract

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
)

// Extractor loads product pages and parses them into records.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New builds an Extractor. Empty selectors fall back to DefaultSelectors.
func New(cfg Config, logger *zap.Logger, now func() time.Time) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	cfg.Selectors = cfg.Selectors.merge(DefaultSelectors())
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &Extractor{cfg: cfg, logger: logger, now: now}
}

// Extract opens link in a fresh session and parses the snapshot.
// Errors mean no record could be produced for the link.
func (e *Extractor) Extract(ctx context.Context, browser catalog.Browser, link catalog.ProductLink) (catalog.ProductRecord, error) {
	page, err := browser.Open(ctx, catalog.PageRequest{
		URL:          string(link),
		WaitSelector: e.cfg.Selectors.WaitSelector,
		WaitTimeout:  e.cfg.WaitTimeout,
	})
	if err != nil {
		metrics.ObservePage(metrics.PhaseExtraction, false)
		return catalog.ProductRecord{}, fmt.Errorf("open product page: %w", err)
	}
	metrics.ObservePage(metrics.PhaseExtraction, true)
	if !page.WaitMatched {
		e.logger.Debug("title selector not found before timeout", zap.String("link", string(link)))
	}
	return e.Parse(page.HTML, link, e.now())
}

// Parse builds a record from rendered HTML. It fails only when the document
// itself cannot be parsed; missing or malformed field groups are left empty.
func (e *Extractor) Parse(html []byte, link catalog.ProductLink, now time.Time) (catalog.ProductRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return catalog.ProductRecord{}, fmt.Errorf("%w: parse product page: %w", catalog.ErrPageLoad, err)
	}
	f, faults := readFields(doc, e.cfg.Selectors, string(link))
	for _, ft := range faults {
		metrics.ObserveFault(metrics.FaultField)
		e.logger.Warn("field group failed",
			zap.String("link", string(link)),
			zap.String("group", ft.Group),
			zap.Error(ft.Cause),
		)
	}
	rec := f.record(link)
	rec.ExtractedAt = now.UTC()
	return rec, nil
}
