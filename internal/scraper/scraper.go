// Package scraper turns a product page URL into structured product data.
//
// The rest of the application only sees the Fetcher interface — the tracker
// and the product service don't know (or care) that the implementation
// crawls Amazon. Tests inject a stub Fetcher.
package scraper

import "context"

// Result is what a successful page fetch yields.
//
// PriceFound is separate from Price because the two failure modes matter
// differently to callers:
//   - Fetch returns an error      → network failure, non-200, unparseable page
//   - PriceFound == false         → page fetched fine but had no price node
//
// Registration rejects both; the periodic tracker skips the tick for both
// but must never write the zero Price into the store.
type Result struct {
	Name       string
	Price      float64
	PriceFound bool
	ImageURL   string // empty when the page has no usable product image
}

// Fetcher retrieves product data for a URL.
//
// Implementations must honour ctx cancellation/deadlines — the tracker runs
// fetches under a bounded timeout so a stalled remote site can't pin a job
// slot indefinitely.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}
