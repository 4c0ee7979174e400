package model

import "time"

// Product is a tracked product page.
//
// WHY TargetPrice *float64 (a pointer)?
// A target price is optional, and 0 is not a sensible sentinel — a user
// could legitimately want an alert at any price. A nil pointer means
// "no target set, never alert"; a non-nil pointer is the threshold.
//
// CurrentPrice is never zero-valued after creation: registration refuses
// products whose page yields no price, and the tracker skips ticks whose
// fetch yields no usable price, so the field always reflects the most
// recent successful scrape.
type Product struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	Name         string    `json:"name"`
	CurrentPrice float64   `json:"currentPrice"`
	TargetPrice  *float64  `json:"targetPrice,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"` // empty when the page had no usable image
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

// PriceHistory is one observed price point for a product.
//
// Rows are append-only: one is written when the product is registered and
// one per successful re-scrape. They are listed newest-first.
type PriceHistory struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceAlert records a delivered price-drop notification.
//
// A row is created only after the notifier reports successful delivery, so
// a failed send leaves no row and the next qualifying tick retries. The
// IsTriggered flag is what suppresses duplicate notifications: as long as a
// triggered row exists for a product, the default policy will not fire again.
type PriceAlert struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"productId"`
	TargetPrice float64   `json:"targetPrice"` // the target at the moment the alert fired
	Email       string    `json:"email"`
	IsTriggered bool      `json:"isTriggered"`
	CreatedAt   time.Time `json:"createdAt"`
}
