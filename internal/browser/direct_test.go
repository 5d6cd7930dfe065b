package browser

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

const listingHTML = `<html><body>
<ul><li class="pagination-btn-holder"><a>1</a></li></ul>
<a class="product-image-wrapper" href="/p/1">one</a>
</body></html>`

func newMockedDirect(t *testing.T) (*Direct, *httpmock.MockTransport) {
	t.Helper()
	transport := httpmock.NewMockTransport()
	d, err := NewDirect(DirectConfig{UserAgent: "harvester-test", Timeout: time.Second, Transport: transport})
	require.NoError(t, err)
	return d, transport
}

func TestDirectOpenReturnsSnapshot(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/c/milk",
		httpmock.NewStringResponder(http.StatusOK, listingHTML))

	page, err := d.Open(context.Background(), catalog.PageRequest{
		URL:          "https://shop.test/c/milk",
		WaitSelector: "a.product-image-wrapper",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.test/c/milk", page.URL)
	assert.Equal(t, http.StatusOK, page.Status)
	assert.True(t, page.WaitMatched)
	assert.Contains(t, string(page.HTML), "product-image-wrapper")
}

func TestDirectOpenRepeatsSameURL(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/p/1",
		httpmock.NewStringResponder(http.StatusOK, "<html></html>"))

	for i := 0; i < 2; i++ {
		_, err := d.Open(context.Background(), catalog.PageRequest{URL: "https://shop.test/p/1"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, transport.GetTotalCallCount())
}

func TestDirectOpenWaitSelectorMissing(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/p/1",
		httpmock.NewStringResponder(http.StatusOK, "<html><body><h1>x</h1></body></html>"))

	page, err := d.Open(context.Background(), catalog.PageRequest{
		URL:          "https://shop.test/p/1",
		WaitSelector: "section[name=title] h1",
	})
	require.NoError(t, err)
	assert.False(t, page.WaitMatched)
}

func TestDirectOpenHTTPErrorIsPageLoad(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/gone",
		httpmock.NewStringResponder(http.StatusNotFound, "nope"))

	_, err := d.Open(context.Background(), catalog.PageRequest{URL: "https://shop.test/gone"})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrPageLoad)
	assert.NotErrorIs(t, err, catalog.ErrEndpointUnreachable)
}

func TestDirectOpenTransportErrorIsPageLoad(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/down",
		httpmock.NewErrorResponder(errors.New("connection reset")))

	_, err := d.Open(context.Background(), catalog.PageRequest{URL: "https://shop.test/down"})
	require.ErrorIs(t, err, catalog.ErrPageLoad)
}

func TestDirectOpenCanceled(t *testing.T) {
	t.Parallel()

	d, transport := newMockedDirect(t)
	transport.RegisterResponder(http.MethodGet, "https://shop.test/slow",
		httpmock.NewStringResponder(http.StatusOK, "ok").Delay(time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := d.Open(ctx, catalog.PageRequest{URL: "https://shop.test/slow"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewDirectRejectsBadProxy(t *testing.T) {
	t.Parallel()

	_, err := NewDirect(DirectConfig{ProxyURL: "://nope"})
	require.Error(t, err)
}

func TestDirectUnreachableProxy(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	d, err := NewDirect(DirectConfig{ProxyURL: "http://" + addr, Timeout: 2 * time.Second})
	require.NoError(t, err)

	_, err = d.Open(context.Background(), catalog.PageRequest{URL: "http://shop.test/c/milk"})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrEndpointUnreachable)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	hooks := &stubHooks{}
	var (
		page     catalog.Page
		fetchErr error
	)
	configureCollectorHooks(hooks, time.Now(), &page, &fetchErr)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	u := mustParseURL(t, "https://shop.test/final")
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: u},
	})
	assert.Equal(t, "https://shop.test/final", page.FinalURL)
	assert.Equal(t, "body", string(page.HTML))

	hooks.onError(nil, errors.New("boom"))
	assert.EqualError(t, fetchErr, "boom")
}

func TestSelectorPresent(t *testing.T) {
	t.Parallel()

	assert.True(t, selectorPresent(nil, ""))
	assert.True(t, selectorPresent([]byte(listingHTML), "li.pagination-btn-holder"))
	assert.False(t, selectorPresent([]byte(listingHTML), "div.missing"))
}
