// Package tracker implements the re-scrape-and-evaluate routine — the one
// piece of this service with temporal state. Each scheduler tick re-fetches
// a product's page, records the price, and decides whether a drop below the
// user's target warrants an email.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/notifier"
	"github.com/sakif/pricepulse/internal/repository"
	"github.com/sakif/pricepulse/internal/scraper"
)

// ErrNoUsablePrice means the page fetch completed but yielded no price.
// The tick leaves the stored state untouched — writing a zero price would
// corrupt current_price, which must always be a real observed value.
var ErrNoUsablePrice = errors.New("tracker: fetch returned no usable price")

// Timeouts on the two external calls. They bound a stalled remote site or
// SMTP server so it can't pin a job slot until process restart.
const (
	defaultFetchTimeout  = 15 * time.Second
	defaultNotifyTimeout = 10 * time.Second
)

// Tracker runs ticks. It owns no schedule of its own — the scheduler calls
// Track on its clock, and the product service calls Tick directly for
// manual refreshes.
type Tracker struct {
	products repository.ProductRepository
	users    repository.UserRepository
	fetcher  scraper.Fetcher
	notifier notifier.Notifier
	policy   AlertPolicy
	logger   *slog.Logger

	fetchTimeout  time.Duration
	notifyTimeout time.Duration

	// locks serializes concurrent ticks for the same product (manual
	// refresh racing the scheduled job). Ticks for different products
	// never contend.
	locks *keyedMutex
}

// New creates a Tracker. policy may be nil, which selects FireOnce.
func New(
	products repository.ProductRepository,
	users repository.UserRepository,
	fetcher scraper.Fetcher,
	n notifier.Notifier,
	policy AlertPolicy,
	logger *slog.Logger,
) *Tracker {
	if policy == nil {
		policy = FireOnce
	}
	return &Tracker{
		products:      products,
		users:         users,
		fetcher:       fetcher,
		notifier:      n,
		policy:        policy,
		logger:        logger,
		fetchTimeout:  defaultFetchTimeout,
		notifyTimeout: defaultNotifyTimeout,
		locks:         newKeyedMutex(),
	}
}

// Track is the scheduler job body: one tick, all failures swallowed.
//
// There is nobody to report to synchronously — the scheduler tick has no
// caller — so errors go to the log and the job stays registered for its
// next firing. A product that has been deleted since scheduling is a
// silent no-op, not an error.
func (t *Tracker) Track(productID string) {
	err := t.Tick(context.Background(), productID)
	switch {
	case err == nil:
	case errors.Is(err, apperror.ErrNotFound):
		// Deleted concurrently; the dangling job will be cancelled by the
		// deletion path, and until then each firing exits here.
		t.logger.Debug("tick skipped, product gone", slog.String("productID", productID))
	case errors.Is(err, ErrNoUsablePrice):
		t.logger.Warn("tick skipped, no usable price", slog.String("productID", productID))
	default:
		t.logger.Error("tick failed",
			slog.String("productID", productID),
			slog.String("error", err.Error()),
		)
	}
}

// Tick runs one re-scrape-and-evaluate pass for productID.
//
// ORDER OF OPERATIONS (and why):
//  1. Load the product. Absent → NotFound, caller decides whether that's
//     silence (background) or a 404 (manual refresh).
//  2. Fetch the page under a bounded timeout. This happens BEFORE taking
//     the per-product lock — network I/O must never extend the critical
//     section, and two concurrent fetches of the same page are merely
//     wasteful, not incorrect.
//  3. Under the per-product lock: write price + history (one transaction;
//     NotFound here means the product was deleted between steps 1 and 3),
//     then evaluate the alert condition and notify. The lock spans the
//     whole check-and-act so a racing manual refresh can't double-send;
//     no store transaction is ever held across the notifier call.
func (t *Tracker) Tick(ctx context.Context, productID string) error {
	product, err := t.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, t.fetchTimeout)
	defer cancel()

	result, err := t.fetcher.Fetch(fetchCtx, product.URL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", product.URL, err)
	}
	if !result.PriceFound {
		return ErrNoUsablePrice
	}

	unlock := t.locks.lock(productID)
	defer unlock()

	now := time.Now()
	if err := t.products.UpdatePriceWithHistory(ctx, productID, result.Price, now); err != nil {
		return err
	}
	product.CurrentPrice = result.Price
	product.LastUpdated = now

	t.logger.Info("price updated",
		slog.String("productID", productID),
		slog.Float64("price", result.Price),
	)

	t.evaluateAlert(ctx, product)
	return nil
}

// evaluateAlert applies the alert policy and notifies when it fires.
//
// Nothing in here propagates: by this point the price tick has succeeded,
// and a notification problem must not convert a recorded price into a
// failed tick. A failed send leaves no alert row, so the next qualifying
// tick simply tries again.
func (t *Tracker) evaluateAlert(ctx context.Context, product *model.Product) {
	if product.TargetPrice == nil {
		return
	}
	target := *product.TargetPrice

	owner, err := t.users.GetUserByID(ctx, product.UserID)
	if err != nil {
		t.logger.Error("alert skipped, owner lookup failed",
			slog.String("productID", product.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if owner.Email == "" {
		return // no recipient configured, nothing to send
	}

	alreadyTriggered := true
	if _, err := t.products.FindTriggeredAlert(ctx, product.ID); err != nil {
		if !errors.Is(err, apperror.ErrNotFound) {
			t.logger.Error("alert skipped, trigger lookup failed",
				slog.String("productID", product.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		alreadyTriggered = false
	}

	decision := t.policy.Evaluate(product.CurrentPrice, target, alreadyTriggered)

	if decision.Reset {
		if err := t.products.ResetTriggeredAlerts(ctx, product.ID); err != nil {
			t.logger.Error("alert reset failed",
				slog.String("productID", product.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		t.logger.Info("alert re-armed, price back above target",
			slog.String("productID", product.ID),
		)
	}

	if !decision.Fire {
		return
	}

	notifyCtx, cancel := context.WithTimeout(ctx, t.notifyTimeout)
	defer cancel()

	err = t.notifier.Send(notifyCtx, notifier.Alert{
		Recipient:    owner.Email,
		ProductName:  product.Name,
		CurrentPrice: product.CurrentPrice,
		TargetPrice:  target,
		ProductURL:   product.URL,
		ImageURL:     product.ImageURL,
	})
	if err != nil {
		// No alert row on failure — the next qualifying tick retries the
		// delivery. Retry-until-success, not idempotent suppression.
		t.logger.Error("alert notification failed",
			slog.String("productID", product.ID),
			slog.String("recipient", owner.Email),
			slog.String("error", err.Error()),
		)
		return
	}

	alert := &model.PriceAlert{
		ProductID:   product.ID,
		TargetPrice: target,
		Email:       owner.Email,
		IsTriggered: true,
	}
	if err := t.products.CreateAlert(ctx, alert); err != nil {
		// The mail went out but the marker didn't stick, so the next tick
		// may send a duplicate. Log loudly; duplicating an alert beats
		// silently never alerting again.
		t.logger.Error("alert sent but not recorded",
			slog.String("productID", product.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	t.logger.Info("price alert fired",
		slog.String("productID", product.ID),
		slog.Float64("price", product.CurrentPrice),
		slog.Float64("target", target),
	)
}
