package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/browser"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/crawler"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/extract"
	pubmemory "github.com/JakeFAU/realtime-cpi-catalog/internal/publisher/memory"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/storage/memory"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/taxonomy"
)

const (
	siteBase      = "https://shop.test/shop"
	categoryCount = 12
	// Each category spans two pages of three products; the last product of a
	// category is also the first of the next one.
	productsPerCategory = 5
	uniqueProducts      = categoryCount*productsPerCategory + 1
)

// site is an in-memory catalog served through the Browser contract.
type site struct {
	pages map[string]string

	mu     sync.Mutex
	opened []string
}

func newSite() *site {
	s := &site{pages: map[string]string{}}
	for c := 0; c < categoryCount; c++ {
		category := fmt.Sprintf("%s/c%02d/all", siteBase, c)
		for p := 1; p <= 2; p++ {
			var b strings.Builder
			b.WriteString(`<html><body><ul><li class="pagination-btn-holder">1</li><li class="pagination-btn-holder">2</li></ul>`)
			for j := 0; j < 3; j++ {
				id := c*productsPerCategory + (p-1)*3 + j
				fmt.Fprintf(&b, `<a class="product-image-wrapper" href="/products/%d">p</a>`, id)
			}
			b.WriteString(`</body></html>`)
			s.pages[fmt.Sprintf("%s?page=%d", category, p)] = b.String()
		}
	}
	for id := 0; id < uniqueProducts; id++ {
		s.pages[fmt.Sprintf("https://shop.test/products/%d", id)] = fmt.Sprintf(
			`<html><body><section name="title"><h1>Product %d</h1></section>`+
				`<section name="purchase"><p class="price">£%d.00</p></section></body></html>`, id, id)
	}
	return s
}

func (s *site) Open(ctx context.Context, req catalog.PageRequest) (catalog.Page, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Page{}, err
	}
	s.mu.Lock()
	s.opened = append(s.opened, req.URL)
	s.mu.Unlock()
	html, ok := s.pages[req.URL]
	if !ok {
		return catalog.Page{}, fmt.Errorf("%w: 404 for %s", catalog.ErrPageLoad, req.URL)
	}
	return catalog.Page{URL: req.URL, FinalURL: req.URL, Status: 200, HTML: []byte(html), WaitMatched: true}, nil
}

type deadEndpoint struct{}

func (deadEndpoint) Open(context.Context, catalog.PageRequest) (catalog.Page, error) {
	return catalog.Page{}, fmt.Errorf("dial: %w", catalog.ErrEndpointUnreachable)
}

// gateBrowser blocks every Open until released.
type gateBrowser struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gateBrowser) Open(ctx context.Context, _ catalog.PageRequest) (catalog.Page, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return catalog.Page{HTML: []byte("<html></html>")}, nil
	case <-ctx.Done():
		return catalog.Page{}, ctx.Err()
	}
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("run-%d", g.n), nil
}

type tableSnapshot struct{ name, body string }

func (s tableSnapshot) Snapshot(context.Context) (string, io.ReadCloser, error) {
	return s.name, io.NopCloser(strings.NewReader(s.body)), nil
}

type fixture struct {
	runner    *Runner
	links     *memory.LinkStore
	products  *memory.ProductStore
	runs      *memory.RunStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	clock     *fakeClock
}

func newFixture(t *testing.T, browsers map[string]catalog.Browser, endpoints []catalog.Endpoint, workers int) *fixture {
	t.Helper()

	pool, err := browser.NewPool(endpoints, func(ep catalog.Endpoint) (catalog.Browser, error) {
		return browsers[ep.Address], nil
	}, 0)
	require.NoError(t, err)

	paths := make([]string, categoryCount)
	for i := range paths {
		paths[i] = fmt.Sprintf("/c%02d/all", i)
	}

	f := &fixture{
		links:     memory.NewLinkStore(),
		products:  memory.NewProductStore(),
		runs:      memory.NewRunStore(),
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		clock:     &fakeClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)},
	}
	f.runner, err = New(Config{
		DiscoveryWorkers:  workers,
		ExtractionWorkers: workers,
		PhaseGap:          10 * time.Second,
		ArchivePrefix:     "harvests",
		NotifyTopic:       "harvest-runs",
	}, Deps{
		Browsers:   pool,
		Categories: taxonomy.Static{BaseURL: siteBase, Paths: paths},
		Crawler:    crawler.New(crawler.Config{WaitTimeout: time.Second}, nil),
		Extractor:  extract.New(extract.Config{WaitTimeout: time.Second}, nil, nil),
		Links:      f.links,
		Products:   f.products,
		Runs:       f.runs,
		Archive:    f.blobs,
		Snapshots:  []catalog.Snapshotter{tableSnapshot{"links.csv", "Link\n"}},
		Publisher:  f.publisher,
		Clock:      f.clock,
		IDs:        &seqIDs{},
	})
	require.NoError(t, err)
	return f
}

func TestRunOnceEndToEnd(t *testing.T) {
	t.Parallel()

	s := newSite()
	f := newFixture(t, map[string]catalog.Browser{"a": s, "b": s},
		[]catalog.Endpoint{{Address: "a"}, {Address: "b"}}, 4)

	summary, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, categoryCount, summary.Discovery.Items)
	assert.Equal(t, categoryCount*2, summary.Discovery.PagesOK)
	assert.Equal(t, categoryCount*6, summary.Discovery.Appended)
	assert.Zero(t, summary.Discovery.ShardsFailed)
	assert.Equal(t, uniqueProducts, summary.UniqueLinks)
	assert.Equal(t, uniqueProducts, summary.Extraction.Appended)
	assert.Zero(t, summary.Extraction.Skipped)
	assert.Empty(t, summary.ErrorText)

	rows := f.links.Rows()
	assert.Len(t, rows, categoryCount*6)
	deduped, err := f.links.LoadDeduplicated(context.Background())
	require.NoError(t, err)
	assert.Len(t, deduped, uniqueProducts)

	records := f.products.Records()
	require.Len(t, records, uniqueProducts)
	titles := map[string]bool{}
	for _, rec := range records {
		titles[rec.Title] = true
		assert.NotNil(t, rec.Nutrition)
	}
	for id := 0; id < uniqueProducts; id++ {
		assert.True(t, titles[fmt.Sprintf("Product %d", id)], "product %d missing", id)
	}

	assert.Equal(t, []time.Duration{10 * time.Second}, f.clock.sleeps)
	assert.Equal(t, []string{"memory://harvests/run-1/links.csv"}, summary.Artifacts)
	assert.Equal(t, []string{"harvests/run-1/links.csv"}, f.blobs.Paths())

	msgs := f.publisher.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "harvest-runs", msgs[0].Topic)
	published := f.publisher.Summaries()
	require.Len(t, published, 1)
	assert.Equal(t, summary.RunID, published[0].RunID)
	assert.Equal(t, uniqueProducts, published[0].UniqueLinks)
	assert.Equal(t, catalog.RunStatusOK, published[0].Status)
	saved, err := f.runs.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, uniqueProducts, saved.Extraction.Appended)

	st := f.runner.Status()
	assert.Equal(t, catalog.RunStateIdle, st.State)
	require.NotNil(t, st.Last)
	assert.Equal(t, "run-1", st.Last.RunID)
}

func TestUnreachableEndpointFailsOnlyItsShards(t *testing.T) {
	t.Parallel()

	s := newSite()
	f := newFixture(t, map[string]catalog.Browser{"a": s, "b": deadEndpoint{}},
		[]catalog.Endpoint{{Address: "a"}, {Address: "b"}}, 4)

	summary, err := f.runner.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovery.ShardsFailed)
	assert.Equal(t, 2, summary.Extraction.ShardsFailed)
	// Shards 0 and 2 each hold three categories: 6 categories, 36 rows.
	assert.Equal(t, 36, summary.Discovery.Appended)
	assert.Positive(t, summary.Extraction.Appended)
	assert.Less(t, summary.Extraction.Appended, summary.UniqueLinks)
	assert.Len(t, f.products.Records(), summary.Extraction.Appended)

	assert.Equal(t, catalog.RunStatusPartial, summary.Status)
	published := f.publisher.Summaries()
	require.Len(t, published, 1)
	assert.Equal(t, catalog.RunStatusPartial, published[0].Status)
	saved, err := f.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunStatusPartial, saved.Status)
}

func TestSecondRunIsRefusedWhileBusy(t *testing.T) {
	t.Parallel()

	gate := &gateBrowser{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, map[string]catalog.Browser{"a": gate}, []catalog.Endpoint{{Address: "a"}}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := f.runner.RunOnce(context.Background())
		done <- err
	}()
	<-gate.entered

	assert.Equal(t, catalog.RunStateDiscovering, f.runner.State())
	_, err := f.runner.RunOnce(context.Background())
	require.ErrorIs(t, err, catalog.ErrRunInProgress)
	_, err = f.runner.Extract(context.Background())
	require.ErrorIs(t, err, catalog.ErrRunInProgress)

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, catalog.RunStateIdle, f.runner.State())
}

func TestCancelKeepsAppendedRowsAndRecordsRun(t *testing.T) {
	t.Parallel()

	gate := &gateBrowser{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, map[string]catalog.Browser{"a": gate}, []catalog.Endpoint{{Address: "a"}}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var summary catalog.RunSummary
	go func() {
		var err error
		summary, err = f.runner.RunOnce(ctx)
		done <- err
	}()
	<-gate.entered
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Contains(t, summary.ErrorText, "canceled")
	assert.Zero(t, summary.Extraction.Items, "extraction never starts")
	assert.Equal(t, catalog.RunStateIdle, f.runner.State())

	saved, err := f.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunStatusCanceled, saved.Status)
	published := f.publisher.Summaries()
	require.Len(t, published, 1)
	assert.Equal(t, catalog.RunStatusCanceled, published[0].Status)
}

func TestDiscoverThenExtractSeparately(t *testing.T) {
	t.Parallel()

	s := newSite()
	f := newFixture(t, map[string]catalog.Browser{"a": s}, []catalog.Endpoint{{Address: "a"}}, 3)

	disc, err := f.runner.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, categoryCount*6, disc.Discovery.Appended)
	assert.Empty(t, f.products.Records())

	ext, err := f.runner.Extract(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uniqueProducts, ext.UniqueLinks)
	assert.Len(t, f.products.Records(), uniqueProducts)
	assert.NotEqual(t, disc.RunID, ext.RunID)
	assert.Empty(t, f.clock.sleeps)
}

func TestPublishFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	s := newSite()
	f := newFixture(t, map[string]catalog.Browser{"a": s}, []catalog.Endpoint{{Address: "a"}}, 2)
	f.publisher.FailWith(errors.New("topic not found"))

	summary, err := f.runner.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.publisher.Messages())

	saved, err := f.runs.GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	assert.Equal(t, categoryCount*6, saved.Discovery.Appended)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, Deps{})
	require.Error(t, err)
}

func TestStartRunsInBackground(t *testing.T) {
	t.Parallel()

	gate := &gateBrowser{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, map[string]catalog.Browser{"a": gate}, []catalog.Endpoint{{Address: "a"}}, 1)

	runID, err := f.runner.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	<-gate.entered

	_, err = f.runner.Start(context.Background())
	require.ErrorIs(t, err, catalog.ErrRunInProgress)
	assert.Equal(t, "run-1", f.runner.Status().RunID)

	close(gate.release)
	require.Eventually(t, func() bool {
		_, err := f.runs.GetRun(context.Background(), runID)
		return err == nil && f.runner.State() == catalog.RunStateIdle
	}, 2*time.Second, 5*time.Millisecond)
}
