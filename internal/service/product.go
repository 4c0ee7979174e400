// Package service contains the business logic layer: validation, ownership
// enforcement, and orchestration between the store, the scraper, the
// scheduler, and the tracker. Handlers stay HTTP-only; repositories stay
// SQL-only; everything in between lives here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/repository"
	"github.com/sakif/pricepulse/internal/scraper"
	"github.com/sakif/pricepulse/internal/tracker"
)

// DefaultTrackInterval is how often each product is re-scraped.
const DefaultTrackInterval = 30 * time.Minute

// TrackingScheduler is the slice of the scheduler the product service
// needs. Declaring it here (consumer side) lets tests substitute a recording
// fake without touching the real cron-backed implementation.
type TrackingScheduler interface {
	Schedule(productID string, period time.Duration, job func())
	Cancel(productID string)
}

// ProductService implements the product lifecycle: register, list, get,
// delete, and manual refresh.
type ProductService struct {
	products repository.ProductRepository
	fetcher  scraper.Fetcher
	sched    TrackingScheduler
	tracker  *tracker.Tracker
	interval time.Duration
	logger   *slog.Logger
}

// NewProductService wires the product lifecycle together. interval <= 0
// selects DefaultTrackInterval.
func NewProductService(
	products repository.ProductRepository,
	fetcher scraper.Fetcher,
	sched TrackingScheduler,
	trk *tracker.Tracker,
	interval time.Duration,
	logger *slog.Logger,
) *ProductService {
	if interval <= 0 {
		interval = DefaultTrackInterval
	}
	return &ProductService{
		products: products,
		fetcher:  fetcher,
		sched:    sched,
		tracker:  trk,
		interval: interval,
		logger:   logger,
	}
}

// Register validates the URL by actually fetching it, creates the product
// with its initial history entry, and schedules tracking.
//
// Registration is stricter than the periodic tracker: a page with no name
// OR no price fails the whole operation, because accepting it would create
// a product violating the "current_price reflects a real fetch" invariant
// from its very first row.
func (s *ProductService) Register(ctx context.Context, userID, rawURL string, targetPrice *float64) (*model.Product, error) {
	rawURL = strings.TrimSpace(rawURL)
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if targetPrice != nil && *targetPrice <= 0 {
		return nil, apperror.ValidationFailed("targetPrice", "target price must be greater than zero")
	}

	result, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		s.logger.Warn("registration fetch failed",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ValidationFailed("url", "could not fetch product information")
	}
	if result.Name == "" || !result.PriceFound {
		return nil, apperror.ValidationFailed("url", "could not fetch product information")
	}

	product := &model.Product{
		URL:          rawURL,
		Name:         result.Name,
		CurrentPrice: result.Price,
		TargetPrice:  targetPrice,
		ImageURL:     result.ImageURL,
		UserID:       userID,
	}
	if err := s.products.CreateProduct(ctx, product); err != nil {
		s.logger.Error("failed to create product",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating product: %w", err)
	}

	s.scheduleTracking(product.ID)

	s.logger.Info("product registered",
		slog.String("id", product.ID),
		slog.String("name", product.Name),
		slog.Float64("price", product.CurrentPrice),
	)

	return product, nil
}

// List returns the caller's products.
func (s *ProductService) List(ctx context.Context, userID string) ([]model.Product, error) {
	products, err := s.products.ListProducts(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list products",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// Get returns one product with its full price history, newest first.
// Products owned by other users come back as NotFound.
func (s *ProductService) Get(ctx context.Context, userID, id string) (*model.Product, []model.PriceHistory, error) {
	product, err := s.products.GetProductForUser(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}

	history, err := s.products.ListPriceHistory(ctx, id)
	if err != nil {
		s.logger.Error("failed to list price history",
			slog.String("productID", id),
			slog.String("error", err.Error()),
		)
		return nil, nil, fmt.Errorf("listing price history: %w", err)
	}

	return product, history, nil
}

// Delete removes the product after an ownership check.
//
// The scheduler job is cancelled BEFORE the rows go: the worst interleaving
// then is a tick already past the cancel, which finds no product row and
// exits silently. Cancelling after the delete could leave a registered job
// for a product that no longer exists.
func (s *ProductService) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.products.GetProductForUser(ctx, userID, id); err != nil {
		return err
	}

	s.sched.Cancel(id)

	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.logger.Info("product deleted", slog.String("id", id))
	return nil
}

// Refresh runs one tracking tick immediately and returns the product as it
// stands afterwards. The tracker's per-product lock serializes this against
// a scheduled tick that happens to fire at the same moment.
func (s *ProductService) Refresh(ctx context.Context, userID, id string) (*model.Product, error) {
	if _, err := s.products.GetProductForUser(ctx, userID, id); err != nil {
		return nil, err
	}

	if err := s.tracker.Tick(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, err
		}
		// Unlike the background job, a manual refresh has a caller to tell.
		s.logger.Warn("manual refresh failed",
			slog.String("productID", id),
			slog.String("error", err.Error()),
		)
		return nil, apperror.ValidationFailed("url", "could not fetch a current price for this product")
	}

	return s.products.GetProduct(ctx, id)
}

// ScheduleAll registers a tracking job for every stored product. Called
// once at startup — the job table lives in memory, so without this a
// restart would silently stop tracking every existing product.
func (s *ProductService) ScheduleAll(ctx context.Context) error {
	ids, err := s.products.ListProductIDs(ctx)
	if err != nil {
		return fmt.Errorf("scheduling existing products: %w", err)
	}
	for _, id := range ids {
		s.scheduleTracking(id)
	}
	s.logger.Info("tracking restored", slog.Int("products", len(ids)))
	return nil
}

func (s *ProductService) scheduleTracking(productID string) {
	s.sched.Schedule(productID, s.interval, func() {
		s.tracker.Track(productID)
	})
}

// validateURL accepts only absolute http(s) URLs.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return apperror.ValidationFailed("url", "product URL is required")
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return apperror.ValidationFailed("url", "product URL must be an absolute http(s) URL")
	}
	return nil
}
