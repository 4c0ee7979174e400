package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/repository"
)

var _ repository.ProductRepository = (*DB)(nil)

// productColumns is the SELECT list shared by every product query, so the
// scan order in scanProduct can't drift out of sync with any one of them.
const productColumns = `id, url, name, current_price, target_price, image_url, user_id, created_at, last_updated`

// CreateProduct inserts the product and its first price-history row in one
// transaction.
//
// WHY ONE TRANSACTION?
// The invariant is "a product always has at least one history entry". If the
// insert of the history row failed after the product row committed, a reader
// could see a product with an empty history. Sharing the transaction means
// either both rows exist or neither does.
func (db *DB) CreateProduct(ctx context.Context, product *model.Product) error {
	product.ID = xid.New().String()

	now := time.Now()
	product.CreatedAt = now
	product.LastUpdated = now

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO products (id, url, name, current_price, target_price, image_url, user_id, created_at, last_updated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			product.ID,
			product.URL,
			product.Name,
			product.CurrentPrice,
			product.TargetPrice, // *float64: nil inserts NULL
			nullableString(product.ImageURL),
			product.UserID,
			product.CreatedAt,
			product.LastUpdated,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating product: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_history (id, product_id, price, timestamp)
			 VALUES (?, ?, ?, ?)`,
			xid.New().String(),
			product.ID,
			product.CurrentPrice,
			now,
		)
		if err != nil {
			return fmt.Errorf("sqlite: creating initial price history: %w", err)
		}

		return nil
	})
}

// GetProduct retrieves a product by ID regardless of owner. The tracker uses
// this — background jobs have no acting user.
func (db *DB) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	return scanProduct(row, id)
}

// GetProductForUser retrieves a product only when it is owned by userID.
//
// A product that exists but belongs to someone else comes back as NotFound,
// not Forbidden — revealing "exists but not yours" would leak which IDs are
// in use.
func (db *DB) GetProductForUser(ctx context.Context, userID, id string) (*model.Product, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = ? AND user_id = ?`, id, userID)
	return scanProduct(row, id)
}

// ListProducts returns all of a user's products, newest first.
func (db *DB) ListProducts(ctx context.Context, userID string) ([]model.Product, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE user_id = ? ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		p, err := scanProductRow(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning product row: %w", err)
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating products: %w", err)
	}

	return products, nil
}

// ListProductIDs returns every product ID in the store. The server calls
// this once at boot to rebuild the tracking schedule.
func (db *DB) ListProductIDs(ctx context.Context) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM products`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing product ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning product id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating product ids: %w", err)
	}

	return ids, nil
}

// DeleteProduct removes the product and everything hanging off it.
//
// Child rows go first so the foreign-key constraints never see a dangling
// reference mid-transaction. If the product row itself turns out not to
// exist, the whole transaction rolls back and NotFound is returned — the
// (empty) child deletions are undone with it.
func (db *DB) DeleteProduct(ctx context.Context, id string) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM price_history WHERE product_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting price history for %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM price_alerts WHERE product_id = ?`, id); err != nil {
			return fmt.Errorf("sqlite: deleting price alerts for %s: %w", id, err)
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting product %s: %w", id, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("product", id)
		}

		return nil
	})
}

// UpdatePriceWithHistory applies a freshly scraped price.
//
// The UPDATE and the history INSERT share one transaction: a reader must
// never observe a current_price whose matching history row isn't there yet
// (or the other way round). RowsAffected == 0 means the product vanished
// between the scheduler tick and this write — surfaced as NotFound so the
// tracker can treat it as a silent no-op.
func (db *DB) UpdatePriceWithHistory(ctx context.Context, productID string, price float64, at time.Time) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE products SET current_price = ?, last_updated = ? WHERE id = ?`,
			price, at, productID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating price for %s: %w", productID, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return apperror.NotFound("product", productID)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO price_history (id, product_id, price, timestamp)
			 VALUES (?, ?, ?, ?)`,
			xid.New().String(), productID, price, at,
		)
		if err != nil {
			return fmt.Errorf("sqlite: appending price history for %s: %w", productID, err)
		}

		return nil
	})
}

// ListPriceHistory returns the product's observed prices, newest first.
func (db *DB) ListPriceHistory(ctx context.Context, productID string) ([]model.PriceHistory, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, product_id, price, timestamp
		 FROM price_history
		 WHERE product_id = ?
		 ORDER BY timestamp DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing price history: %w", err)
	}
	defer rows.Close()

	history := make([]model.PriceHistory, 0, 8)
	for rows.Next() {
		var h model.PriceHistory
		if err := rows.Scan(&h.ID, &h.ProductID, &h.Price, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("sqlite: scanning price history row: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating price history: %w", err)
	}

	return history, nil
}

// FindTriggeredAlert returns the product's triggered alert, if any. The
// default alert policy checks this to suppress duplicate notifications.
func (db *DB) FindTriggeredAlert(ctx context.Context, productID string) (*model.PriceAlert, error) {
	var alert model.PriceAlert
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, product_id, target_price, email, is_triggered, created_at
		 FROM price_alerts
		 WHERE product_id = ? AND is_triggered = 1
		 LIMIT 1`,
		productID,
	).Scan(
		&alert.ID,
		&alert.ProductID,
		&alert.TargetPrice,
		&alert.Email,
		&alert.IsTriggered,
		&alert.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("price alert", productID)
		}
		return nil, fmt.Errorf("sqlite: finding triggered alert for %s: %w", productID, err)
	}

	return &alert, nil
}

// CreateAlert records a delivered notification.
func (db *DB) CreateAlert(ctx context.Context, alert *model.PriceAlert) error {
	alert.ID = xid.New().String()
	alert.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO price_alerts (id, product_id, target_price, email, is_triggered, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		alert.ID,
		alert.ProductID,
		alert.TargetPrice,
		alert.Email,
		alert.IsTriggered,
		alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating price alert: %w", err)
	}

	return nil
}

// ResetTriggeredAlerts clears the triggered flag on all of the product's
// alerts. Zero rows affected is fine — nothing was armed.
func (db *DB) ResetTriggeredAlerts(ctx context.Context, productID string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE price_alerts SET is_triggered = 0 WHERE product_id = ?`,
		productID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: resetting alerts for %s: %w", productID, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows so the two scan helpers can
// share one implementation.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row *sql.Row, id string) (*model.Product, error) {
	p, err := scanProductRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("product", id)
		}
		return nil, fmt.Errorf("sqlite: getting product %s: %w", id, err)
	}
	return p, nil
}

func scanProductRow(row rowScanner) (*model.Product, error) {
	var (
		p        model.Product
		target   sql.NullFloat64
		imageURL sql.NullString
	)

	err := row.Scan(
		&p.ID,
		&p.URL,
		&p.Name,
		&p.CurrentPrice,
		&target,
		&imageURL,
		&p.UserID,
		&p.CreatedAt,
		&p.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if target.Valid {
		p.TargetPrice = &target.Float64
	}
	if imageURL.Valid {
		p.ImageURL = imageURL.String
	}

	return &p, nil
}

// nullableString maps "" to NULL so empty image URLs aren't stored as
// empty strings.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
