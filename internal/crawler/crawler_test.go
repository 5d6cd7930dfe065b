package crawler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

type fakeBrowser struct {
	mu     sync.Mutex
	pages  map[string]string
	errs   map[string]error
	opened []catalog.PageRequest
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{pages: map[string]string{}, errs: map[string]error{}}
}

func (f *fakeBrowser) Open(_ context.Context, request catalog.PageRequest) (catalog.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, request)
	if err, ok := f.errs[request.URL]; ok {
		return catalog.Page{}, err
	}
	html, ok := f.pages[request.URL]
	if !ok {
		return catalog.Page{}, fmt.Errorf("%w: %s: not found", catalog.ErrPageLoad, request.URL)
	}
	return catalog.Page{URL: request.URL, FinalURL: request.URL, HTML: []byte(html)}, nil
}

func listingPage(totalPages int, hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 1; i <= totalPages && totalPages > 1; i++ {
		fmt.Fprintf(&b, `<li class="pagination-btn-holder"><a>%d</a></li>`, i)
	}
	if totalPages > 1 {
		b.WriteString(`<li class="pagination-btn-holder"><a>Next</a></li>`)
	}
	b.WriteString("</ul>")
	for _, h := range hrefs {
		fmt.Fprintf(&b, `<div class="card"><a class="product-image-wrapper" href="%s">img</a></div>`, h)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func pageKey(category string, n int) string {
	return fmt.Sprintf("%s?page=%d", category, n)
}

func newTestCrawler() *Crawler {
	return New(Config{WaitTimeout: time.Second}, nil)
}

func TestCrawlCollectsAllPagesInOrder(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/dairy/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = listingPage(3, "/p/1", "/p/2")
	b.pages[pageKey(category, 2)] = listingPage(3, "/p/3")
	b.pages[pageKey(category, 3)] = listingPage(3, "https://shop.test/p/4#reviews")

	links, err := newTestCrawler().Crawl(context.Background(), b, category)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ProductLink{
		"https://shop.test/p/1",
		"https://shop.test/p/2",
		"https://shop.test/p/3",
		"https://shop.test/p/4",
	}, links)
	require.Len(t, b.opened, 3, "page 1 snapshot must be reused")
	assert.Equal(t, DefaultPaginationSelector, b.opened[0].WaitSelector)
	assert.Equal(t, DefaultProductSelector, b.opened[1].WaitSelector)
}

func TestCrawlSurvivesPoisonedPage(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/bakery/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = listingPage(5, "/p/1")
	b.pages[pageKey(category, 2)] = listingPage(5, "/p/2")
	b.errs[pageKey(category, 3)] = fmt.Errorf("%w: timeout", catalog.ErrPageLoad)
	b.pages[pageKey(category, 4)] = listingPage(5, "/p/4")
	b.pages[pageKey(category, 5)] = listingPage(5, "/p/5")

	res, err := newTestCrawler().CrawlCategory(context.Background(), b, category)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ProductLink{
		"https://shop.test/p/1",
		"https://shop.test/p/2",
		"https://shop.test/p/4",
		"https://shop.test/p/5",
	}, res.Links)
	assert.Equal(t, 5, res.TotalPages)
	assert.Equal(t, 4, res.PagesOK)
	assert.Equal(t, 1, res.PagesFailed)
	assert.False(t, res.Aborted)
}

func TestCrawlWithoutPaginationReturnsFirstPage(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/frozen/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = listingPage(1, "/p/9", "/p/8")

	res, err := newTestCrawler().CrawlCategory(context.Background(), b, category)
	require.NoError(t, err)
	assert.Equal(t, []catalog.ProductLink{"https://shop.test/p/9", "https://shop.test/p/8"}, res.Links)
	assert.Equal(t, 1, res.TotalPages)
	assert.Len(t, b.opened, 1)
}

func TestCrawlUnreadablePageCountAbortsCategory(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/drinks/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = `<html><body>
<li class="pagination-btn-holder"><a>Prev</a></li>
<li class="pagination-btn-holder"><a>Next</a></li>
<a class="product-image-wrapper" href="/p/1">x</a>
</body></html>`

	res, err := newTestCrawler().CrawlCategory(context.Background(), b, category)
	require.NoError(t, err)
	assert.Empty(t, res.Links)
	assert.True(t, res.Aborted)
	assert.Len(t, b.opened, 1)
}

func TestCrawlFirstPageFailureSkipsCategory(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/pets/all"
	b := newFakeBrowser()
	b.errs[pageKey(category, 1)] = fmt.Errorf("%w: blank page", catalog.ErrPageLoad)

	res, err := newTestCrawler().CrawlCategory(context.Background(), b, category)
	require.NoError(t, err)
	assert.Empty(t, res.Links)
	assert.True(t, res.Aborted)
	assert.Equal(t, 1, res.PagesFailed)
}

func TestCrawlEndpointUnreachableEscapes(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/home/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = listingPage(3, "/p/1")
	b.errs[pageKey(category, 2)] = fmt.Errorf("%w: ws://browser", catalog.ErrEndpointUnreachable)

	res, err := newTestCrawler().CrawlCategory(context.Background(), b, category)
	require.ErrorIs(t, err, catalog.ErrEndpointUnreachable)
	assert.Equal(t, []catalog.ProductLink{"https://shop.test/p/1"}, res.Links)
	assert.Len(t, b.opened, 2)
}

func TestCrawlHonorsCancellationBetweenPages(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/toys/all"
	b := newFakeBrowser()
	b.pages[pageKey(category, 1)] = listingPage(4, "/p/1")

	c := New(Config{MinDelay: time.Hour, MaxDelay: time.Hour}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	c.pauser = pauseFunc(func(context.Context, time.Duration) { cancel() })

	_, err := c.CrawlCategory(ctx, b, category)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.opened, 1)
}

func TestCrawlPausesBetweenPages(t *testing.T) {
	t.Parallel()

	const category = "https://shop.test/shop/garden/all"
	b := newFakeBrowser()
	for n := 1; n <= 3; n++ {
		b.pages[pageKey(category, n)] = listingPage(3)
	}

	var delays []time.Duration
	c := New(Config{MinDelay: 2 * time.Second, MaxDelay: 4 * time.Second}, nil)
	c.pauser = pauseFunc(func(_ context.Context, d time.Duration) { delays = append(delays, d) })

	_, err := c.CrawlCategory(context.Background(), b, category)
	require.NoError(t, err)
	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}

func TestCrawlInvalidCategoryURL(t *testing.T) {
	t.Parallel()

	b := newFakeBrowser()
	res, err := newTestCrawler().CrawlCategory(context.Background(), b, "://bad")
	require.NoError(t, err)
	assert.True(t, res.Aborted)
	assert.Empty(t, b.opened)
}

type pauseFunc func(ctx context.Context, d time.Duration)

func (f pauseFunc) Pause(ctx context.Context, d time.Duration) { f(ctx, d) }
