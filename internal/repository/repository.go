// Package repository declares the storage contracts the rest of the
// application programs against. The sqlite subpackage is the concrete
// implementation; tests substitute in-memory mocks.
package repository

import (
	"context"
	"time"

	"github.com/sakif/pricepulse/internal/model"
)

// UserRepository stores user accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

// ProductRepository stores tracked products together with their price
// history and alert rows. History and alerts have no lifecycle of their
// own — they are created and destroyed through their product.
type ProductRepository interface {
	// CreateProduct inserts the product and its initial price-history row
	// in a single transaction, so a product is never observable without
	// at least one history entry.
	CreateProduct(ctx context.Context, product *model.Product) error

	GetProduct(ctx context.Context, id string) (*model.Product, error)

	// GetProductForUser returns the product only if it belongs to userID;
	// a product owned by someone else is indistinguishable from a missing
	// one (NotFound either way).
	GetProductForUser(ctx context.Context, userID, id string) (*model.Product, error)

	ListProducts(ctx context.Context, userID string) ([]model.Product, error)

	// ListProductIDs returns the IDs of every product in the store,
	// regardless of owner. Used at boot to re-schedule tracking jobs.
	ListProductIDs(ctx context.Context) ([]string, error)

	// DeleteProduct removes the product and cascades to its history and
	// alert rows in one transaction. No orphaned rows survive.
	DeleteProduct(ctx context.Context, id string) error

	// UpdatePriceWithHistory sets current_price and last_updated and
	// appends the matching price-history row as a single atomic unit.
	// A concurrent reader never sees one side without the other.
	UpdatePriceWithHistory(ctx context.Context, productID string, price float64, at time.Time) error

	// ListPriceHistory returns the product's history newest-first.
	ListPriceHistory(ctx context.Context, productID string) ([]model.PriceHistory, error)

	// FindTriggeredAlert returns the product's triggered alert, or a
	// NotFound error when none has fired yet.
	FindTriggeredAlert(ctx context.Context, productID string) (*model.PriceAlert, error)

	CreateAlert(ctx context.Context, alert *model.PriceAlert) error

	// ResetTriggeredAlerts clears the is_triggered flag on all of the
	// product's alerts, re-arming it for future notifications. Used by
	// the reset-on-recovery alert policy.
	ResetTriggeredAlerts(ctx context.Context, productID string) error
}
