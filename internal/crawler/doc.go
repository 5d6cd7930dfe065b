// Package crawler walks the paginated listing of one category and collects
// the product links it contains.
//
// A category is crawled page by page through a single catalog.Browser. Page 1
// determines the total page count from the pagination control; every page
// then contributes its product cards in DOM order. Individual page faults are
// logged and skipped so one bad page never loses the rest of the category.
// Only an unreachable endpoint or context cancellation is returned to the
// caller.
package crawler
