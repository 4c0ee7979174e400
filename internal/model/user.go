// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account that owns tracked products.
//
// WHY PasswordHash `json:"-"`?
// The `-` tag tells encoding/json to never serialize this field. Even though
// the hash is not the password itself, there is no reason for it to ever
// appear in an API response — this is a guard against accidental leaks when
// a handler encodes the whole struct.
//
// IsActive defaults to true on registration; deactivated accounts keep their
// rows (and products) but can no longer log in.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}
