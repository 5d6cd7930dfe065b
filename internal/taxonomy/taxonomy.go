// Package taxonomy resolves the category listings a run starts from.
package taxonomy

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// DefaultPaths are the top-level departments of the reference grocery site.
var DefaultPaths = []string{
	"/christmas/all",
	"/fresh-food/all",
	"/bakery/all",
	"/frozen-food/all",
	"/treats-and-snacks/all",
	"/food-cupboard/all",
	"/drinks/all",
	"/baby-and-toddler/all",
	"/health-and-beauty/all",
	"/pets/all",
	"/household/all",
	"/home-and-ents/all",
}

// Static joins a fixed list of paths onto a base URL.
type Static struct {
	BaseURL string
	Paths   []string
}

// Categories returns BaseURL+path for each configured path, in order.
func (s Static) Categories(_ context.Context, _ catalog.Browser) ([]catalog.CategoryURL, error) {
	paths := s.Paths
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	base := strings.TrimRight(s.BaseURL, "/")
	if base == "" {
		return nil, fmt.Errorf("taxonomy base url is empty")
	}
	out := make([]catalog.CategoryURL, 0, len(paths))
	for _, p := range paths {
		out = append(out, catalog.CategoryURL(base+"/"+strings.TrimLeft(p, "/")))
	}
	return dedupe(out), nil
}

// MenuConfig drives category discovery from a site's navigation menu.
type MenuConfig struct {
	PageURL        string
	LinkSelector   string
	PathPrefix     string
	CategorySuffix string
	WaitTimeout    time.Duration
}

// Menu loads the navigation page once and derives category roots from its links.
type Menu struct {
	cfg    MenuConfig
	logger *zap.Logger
}

// NewMenu creates a Menu source.
func NewMenu(cfg MenuConfig, logger *zap.Logger) *Menu {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LinkSelector == "" {
		cfg.LinkSelector = "nav a[href]"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 10 * time.Second
	}
	return &Menu{cfg: cfg, logger: logger}
}

// Categories reads anchors under the menu whose path starts with PathPrefix.
func (m *Menu) Categories(ctx context.Context, browser catalog.Browser) ([]catalog.CategoryURL, error) {
	page, err := browser.Open(ctx, catalog.PageRequest{
		URL:          m.cfg.PageURL,
		WaitSelector: m.cfg.LinkSelector,
		WaitTimeout:  m.cfg.WaitTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("load navigation menu: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse navigation menu: %w", err)
	}
	base := page.FinalURL
	if base == "" {
		base = m.cfg.PageURL
	}

	var out []catalog.CategoryURL
	doc.Find(m.cfg.LinkSelector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		link, err := catalog.ResolveLink(base, href)
		if err != nil {
			return
		}
		u, err := url.Parse(string(link))
		if err != nil || !strings.HasPrefix(u.Path, m.cfg.PathPrefix) {
			return
		}
		u.RawQuery = ""
		u.Path = strings.TrimRight(u.Path, "/") + m.cfg.CategorySuffix
		out = append(out, catalog.CategoryURL(u.String()))
	})
	out = dedupe(out)
	m.logger.Info("categories discovered from menu", zap.Int("categories", len(out)))
	return out, nil
}

// LinkLoader is the read side of a link table.
type LinkLoader interface {
	LoadDeduplicated(ctx context.Context) ([]catalog.ProductLink, error)
}

// Table reads category roots from a previously written link table, such as
// a hand-curated list of promotion pages.
type Table struct {
	Source LinkLoader
}

// Categories returns the table's rows as category URLs.
func (t Table) Categories(ctx context.Context, _ catalog.Browser) ([]catalog.CategoryURL, error) {
	links, err := t.Source.LoadDeduplicated(ctx)
	if err != nil {
		return nil, fmt.Errorf("load category table: %w", err)
	}
	out := make([]catalog.CategoryURL, len(links))
	for i, l := range links {
		out[i] = catalog.CategoryURL(l)
	}
	return out, nil
}

func dedupe(in []catalog.CategoryURL) []catalog.CategoryURL {
	seen := make(map[catalog.CategoryURL]struct{}, len(in))
	out := in[:0]
	for _, c := range in {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
