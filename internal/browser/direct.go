package browser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// DirectConfig controls the plain HTTP session family.
type DirectConfig struct {
	// ProxyURL routes requests through the endpoint when set.
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the HTTP transport; tests use it to stub responses.
	Transport http.RoundTripper
}

// Direct implements catalog.Browser with a colly collector per Open call.
// It does not execute JavaScript.
type Direct struct {
	cfg           DirectConfig
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// NewDirect builds a Direct browser.
func NewDirect(cfg DirectConfig) (*Direct, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	transport := cfg.Transport
	if transport == nil {
		base := newHTTPTransport()
		if cfg.ProxyURL != "" {
			proxy, err := url.Parse(cfg.ProxyURL)
			if err != nil || proxy.Host == "" {
				return nil, fmt.Errorf("invalid proxy address %q", cfg.ProxyURL)
			}
			base.Proxy = http.ProxyURL(proxy)
		}
		transport = base
	}

	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.IgnoreRobotsTxt = true
	c.WithTransport(transport)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)

	return &Direct{cfg: cfg, baseCollector: c}, nil
}

// Open fetches request.URL and reports whether WaitSelector is present in the body.
func (d *Direct) Open(ctx context.Context, request catalog.PageRequest) (catalog.Page, error) {
	var (
		page     catalog.Page
		fetchErr error
	)
	start := time.Now()
	collector := d.baseCollector.Clone()
	collector.Context = ctx
	configureCollectorHooks(collector, start, &page, &fetchErr)

	if err := d.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return catalog.Page{}, err
	}
	page.URL = request.URL
	page.WaitMatched = selectorPresent(page.HTML, request.WaitSelector)
	return page, nil
}

func configureCollectorHooks(hooks collectorHooks, start time.Time, page *catalog.Page, fetchErr *error) {
	hooks.OnResponse(func(r *colly.Response) {
		*page = catalog.Page{
			FinalURL: r.Request.URL.String(),
			Status:   r.StatusCode,
			HTML:     append([]byte(nil), r.Body...),
			Duration: time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (d *Direct) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("direct fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err == nil {
			err = *fetchErr
		}
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("direct fetch canceled: %w", ctxErr)
		}
		if d.cfg.ProxyURL != "" && isProxyConnectError(err) {
			return fmt.Errorf("%w: %s: %w", catalog.ErrEndpointUnreachable, redact(d.cfg.ProxyURL), err)
		}
		return fmt.Errorf("%w: %s: %w", catalog.ErrPageLoad, target, err)
	}
}

func isProxyConnectError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "proxyconnect"
}

// selectorPresent reports whether selector matches at least one element.
// An empty selector always matches.
func selectorPresent(html []byte, selector string) bool {
	if selector == "" {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return false
	}
	return doc.Find(selector).Length() > 0
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
