package browser

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/realtime-cpi-catalog/internal/catalog"
	"github.com/JakeFAU/realtime-cpi-catalog/internal/metrics"
)

// pacedBrowser throttles page loads on one physical endpoint.
type pacedBrowser struct {
	inner    catalog.Browser
	limiter  *rate.Limiter
	endpoint string
}

func (b *pacedBrowser) Open(ctx context.Context, request catalog.PageRequest) (catalog.Page, error) {
	start := time.Now()
	if err := b.limiter.Wait(ctx); err != nil {
		return catalog.Page{}, fmt.Errorf("endpoint rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(b.endpoint, waited)
	}
	return b.inner.Open(ctx, request)
}
