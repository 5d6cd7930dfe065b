package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

// ChromiumConfig controls a remote Chrome DevTools endpoint.
type ChromiumConfig struct {
	// Address is the DevTools websocket or http URL of the remote browser.
	Address           string
	UserAgent         string
	NavigationTimeout time.Duration
	ConnectTimeout    time.Duration
}

// Chromium implements catalog.Browser against a remote Chromium instance.
// Each Open call creates a new target and closes it before returning.
type Chromium struct {
	cfg         ChromiumConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromium prepares a remote allocator. No connection is made until Open.
func NewChromium(cfg ChromiumConfig) (*Chromium, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("chromium endpoint address is required")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.Address)
	return &Chromium{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (c *Chromium) Close() {
	c.allocCancel()
}

// Open loads request.URL in a fresh session and returns the rendered DOM.
func (c *Chromium) Open(ctx context.Context, request catalog.PageRequest) (catalog.Page, error) {
	start := time.Now()

	sessionCtx, sessionCancel := chromedp.NewContext(c.allocator)
	defer sessionCancel()
	stop := context.AfterFunc(ctx, sessionCancel)
	defer stop()

	// The first Run attaches to the remote browser. A derived timeout context
	// would bound the session lifetime, so the connect deadline is a timer instead.
	timer := time.AfterFunc(c.cfg.ConnectTimeout, sessionCancel)
	err := chromedp.Run(sessionCtx)
	timer.Stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return catalog.Page{}, ctxErr
		}
		return catalog.Page{}, fmt.Errorf("%w: %s: %w", catalog.ErrEndpointUnreachable, c.cfg.Address, err)
	}

	meta := newResponseMeta()
	chromedp.ListenTarget(sessionCtx, meta.captureEvent)

	navCtx, navCancel := context.WithTimeout(sessionCtx, c.cfg.NavigationTimeout)
	defer navCancel()
	if err := chromedp.Run(navCtx,
		c.networkSetupAction(),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return catalog.Page{}, c.pageError(ctx, request.URL, err)
	}

	matched := c.waitFor(sessionCtx, request)

	var (
		html     string
		finalURL string
	)
	if err := chromedp.Run(navCtx,
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return catalog.Page{}, c.pageError(ctx, request.URL, err)
	}

	status, responseURL := meta.snapshot()
	if responseURL == "" {
		responseURL = finalURL
	}
	if status >= http.StatusBadRequest {
		return catalog.Page{}, fmt.Errorf("%w: %s: status %d", catalog.ErrPageLoad, request.URL, status)
	}
	if status == 0 {
		status = http.StatusOK
	}

	return catalog.Page{
		URL:         request.URL,
		FinalURL:    responseURL,
		Status:      status,
		HTML:        []byte(html),
		WaitMatched: matched,
		Duration:    time.Since(start),
	}, nil
}

// waitFor reports whether the wait selector appeared before its deadline.
// An unmatched selector is not an error; the snapshot is still taken.
func (c *Chromium) waitFor(ctx context.Context, request catalog.PageRequest) bool {
	if request.WaitSelector == "" {
		return true
	}
	timeout := request.WaitTimeout
	if timeout <= 0 {
		timeout = c.cfg.NavigationTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return chromedp.Run(waitCtx, chromedp.WaitReady(request.WaitSelector, chromedp.ByQuery)) == nil
}

func (c *Chromium) pageError(ctx context.Context, url string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: navigation timed out after %s", catalog.ErrPageLoad, url, c.cfg.NavigationTimeout)
	}
	return fmt.Errorf("%w: %s: %w", catalog.ErrPageLoad, url, err)
}

func (c *Chromium) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// responseMeta records the main document response seen by the session.
type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.url
}
