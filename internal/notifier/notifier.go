// Package notifier delivers price-drop alerts to users.
//
// Like the scraper, only an interface leaks out: the tracker calls Send and
// the SMTP details stay in this package. A failed Send means no alert record
// gets persisted, so the next qualifying tick retries the delivery.
package notifier

import "context"

// Alert carries everything the message template needs.
type Alert struct {
	Recipient    string
	ProductName  string
	CurrentPrice float64
	TargetPrice  float64
	ProductURL   string
	ImageURL     string // optional; omitted from the message when empty
}

// Notifier sends one alert message. A nil return means the message was
// accepted for delivery; anything else is treated as "not delivered" by
// the caller.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}
