package browser

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
)

func TestNewChromiumRequiresAddress(t *testing.T) {
	t.Parallel()

	_, err := NewChromium(ChromiumConfig{})
	require.Error(t, err)
}

func TestNewChromiumDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewChromium(ChromiumConfig{Address: "ws://127.0.0.1:9222"})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, 45*time.Second, c.cfg.NavigationTimeout)
	assert.Equal(t, 15*time.Second, c.cfg.ConnectTimeout)
}

func TestChromiumUnreachableEndpoint(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	c, err := NewChromium(ChromiumConfig{Address: "ws://" + addr + "/devtools/browser/x", ConnectTimeout: 2 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Open(context.Background(), catalog.PageRequest{URL: "https://shop.test/c/milk"})
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrEndpointUnreachable)
}

func TestResponseMetaCapturesDocumentOnly(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{URL: "https://shop.test/img.png", Status: 404},
	})
	status, url := meta.snapshot()
	assert.Zero(t, status)
	assert.Empty(t, url)

	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{URL: "https://shop.test/p/1", Status: 200},
	})
	status, url = meta.snapshot()
	assert.Equal(t, 200, status)
	assert.Equal(t, "https://shop.test/p/1", url)

	meta.captureEvent("not an event")
}
