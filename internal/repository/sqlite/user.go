package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/pricepulse/internal/apperror"
	"github.com/sakif/pricepulse/internal/model"
	"github.com/sakif/pricepulse/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a typed nil to the interface — if *DB
// stops implementing UserRepository, the build breaks here instead of at
// some distant call site.
var _ repository.UserRepository = (*DB)(nil)

// CreateUser inserts a new account row.
//
// The UNIQUE constraints on email and username are the source of truth for
// duplicates; we translate the constraint violation into a Conflict error
// rather than racing a SELECT-then-INSERT check.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = time.Now()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.IsActive,
		user.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a single user by internal ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "id", id)
}

// GetUserByEmail retrieves a single user by email address. Login looks
// users up this way, so email is the account's external identity.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return db.getUser(ctx, "email", email)
}

func (db *DB) getUser(ctx context.Context, column, value string) (*model.User, error) {
	var user model.User

	// The column name is one of two package-internal constants, never user
	// input, so interpolating it is safe. The value still goes through a
	// placeholder.
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, username, password_hash, is_active, created_at
		 FROM users
		 WHERE `+column+` = ?`,
		value,
	).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", value)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", value, err)
	}

	return &user, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint error.
//
// modernc.org/sqlite doesn't export a typed error for this, so we match the
// stable message prefix ("constraint failed: UNIQUE constraint failed: ...").
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
