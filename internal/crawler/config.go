package crawler

import "time"

// Default selectors for the reference listing layout.
const (
	DefaultPaginationSelector = "li.pagination-btn-holder"
	DefaultProductSelector    = "a.product-image-wrapper"
	DefaultPageParam          = "page"
)

// Config controls listing traversal.
type Config struct {
	// PaginationSelector matches one element per pagination button.
	PaginationSelector string
	// ProductSelector matches the anchor of each product card.
	ProductSelector string
	// PageParam is the query parameter carrying the page number.
	PageParam string
	// WaitTimeout bounds the wait for the awaited selector on each page.
	WaitTimeout time.Duration
	// MinDelay and MaxDelay bound the randomized pause between page loads.
	MinDelay time.Duration
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.PaginationSelector == "" {
		c.PaginationSelector = DefaultPaginationSelector
	}
	if c.ProductSelector == "" {
		c.ProductSelector = DefaultProductSelector
	}
	if c.PageParam == "" {
		c.PageParam = DefaultPageParam
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	return c
}
