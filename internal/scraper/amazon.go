package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// userAgent is a plain desktop-browser string. Amazon serves a bot-detection
// interstitial to the default Go user agent; a browser UA gets the normal
// product page.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// defaultTimeout bounds a single page fetch when the caller's context
// carries no deadline of its own.
const defaultTimeout = 15 * time.Second

// nonPrice strips currency symbols and thousands separators from a price
// string, e.g. "$1,299.99" → "1299.99".
var nonPrice = regexp.MustCompile(`[^\d.]`)

// AmazonFetcher scrapes Amazon product pages.
//
// SELECTORS:
// Amazon's markup shifts between layouts, so every field tries a list of
// known selectors in order:
//   - name:  span#productTitle
//   - price: .a-price .a-offscreen (full price incl. fraction), falling back
//     to span.a-price-whole (older layout, whole part only)
//   - image: img#landingImage, preferring the data-old-hires attribute
//     (full-resolution) over src (thumbnail)
type AmazonFetcher struct {
	logger *slog.Logger

	// domains restricts which hosts the collector visits; empty means any.
	// Tests point this at the httptest server's host.
	domains []string
}

var _ Fetcher = (*AmazonFetcher)(nil)

// NewAmazonFetcher creates a fetcher for real Amazon pages.
func NewAmazonFetcher(logger *slog.Logger) *AmazonFetcher {
	return &AmazonFetcher{logger: logger}
}

// NewFetcherForDomains creates a fetcher limited to the given hosts.
// Used by tests to scrape a local httptest server with the same selector
// logic as production.
func NewFetcherForDomains(logger *slog.Logger, domains ...string) *AmazonFetcher {
	return &AmazonFetcher{logger: logger, domains: domains}
}

// Fetch retrieves and parses one product page.
//
// WHY A FRESH COLLECTOR PER CALL?
// colly collectors accumulate state (visited URLs, registered callbacks).
// The tracker fetches many products concurrently, and sharing one collector
// would mean shared mutable callback state between goroutines. A collector
// per fetch keeps each scrape self-contained; the construction cost is
// trivial next to the network round trip.
func (f *AmazonFetcher) Fetch(ctx context.Context, url string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := []colly.CollectorOption{
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	}
	if len(f.domains) > 0 {
		opts = append(opts, colly.AllowedDomains(f.domains...))
	}
	c := colly.NewCollector(opts...)
	c.SetRequestTimeout(timeoutFrom(ctx))

	var (
		result    Result
		rawPrice  string
		imageHi   string
		imageSrc  string
		wholePart string
	)

	c.OnHTML("span#productTitle", func(e *colly.HTMLElement) {
		if result.Name == "" {
			result.Name = strings.TrimSpace(e.Text)
		}
	})

	c.OnHTML(".a-price .a-offscreen", func(e *colly.HTMLElement) {
		if rawPrice == "" {
			rawPrice = strings.TrimSpace(e.Text)
		}
	})

	// Older layout: the whole part only ("1,299"). Used when .a-offscreen
	// is absent entirely.
	c.OnHTML("span.a-price-whole", func(e *colly.HTMLElement) {
		if wholePart == "" {
			wholePart = strings.TrimSpace(e.Text)
		}
	})

	c.OnHTML("img#landingImage", func(e *colly.HTMLElement) {
		if imageHi == "" {
			imageHi = e.Attr("data-old-hires")
		}
		if imageSrc == "" {
			imageSrc = e.Attr("src")
		}
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("scraper: fetching %s: %w", url, err)
	}
	c.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if rawPrice == "" {
		rawPrice = wholePart
	}
	if rawPrice != "" {
		price, err := parsePrice(rawPrice)
		if err != nil {
			// A present-but-garbled price node counts as "no usable price",
			// not a fetch failure — the page itself came back fine.
			f.logger.Warn("unparseable price on product page",
				slog.String("url", url),
				slog.String("raw", rawPrice),
			)
		} else {
			result.Price = price
			result.PriceFound = true
		}
	}

	if imageHi != "" {
		result.ImageURL = imageHi
	} else {
		result.ImageURL = imageSrc
	}

	return &result, nil
}

// timeoutFrom derives a request timeout from the context deadline, falling
// back to defaultTimeout when the caller set none.
func timeoutFrom(ctx context.Context) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return defaultTimeout
	}
	remaining := time.Until(deadline)
	if remaining <= 0 || remaining > defaultTimeout {
		return defaultTimeout
	}
	return remaining
}

// parsePrice normalises a scraped price string to a float.
func parsePrice(raw string) (float64, error) {
	cleaned := nonPrice.ReplaceAllString(raw, "")
	// "1.299.99" style strings (some locales) would ParseFloat-fail here,
	// which is the behavior we want — better no price than a wrong one.
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing price %q: %w", raw, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive price %q", raw)
	}
	return price, nil
}
