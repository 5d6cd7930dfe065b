// Package browser provides the pool of remote browser endpoints and the
// session backends that open one page per session.
//
// A Pool maps an arbitrary number of workers onto K physical endpoints with
// round-robin reuse (worker i is bound to endpoint i mod K). Each endpoint has
// one Browser; every Open call on it creates a fresh session, loads a single
// page, snapshots the DOM and releases the session before returning.
//
// Two families are supported:
//   - chromium: a remote Chrome DevTools endpoint driven by chromedp.
//   - direct: a plain HTTP fetch through colly, optionally via the endpoint
//     address as proxy. Useful for server-rendered listings and for tests.
//
// No health checking or failover is performed. A session that cannot be
// opened surfaces catalog.ErrEndpointUnreachable to the caller.
package browser
