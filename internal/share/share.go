// Package share mints and validates time-boxed capability tokens granting
// access to a single asset path without a user account.
package share

import (
	"context"
	"errors"
	"time"
)

// Validation errors. Handlers map these onto HTTP statuses.
var (
	// ErrNotFound means the token key does not exist or was revoked.
	ErrNotFound = errors.New("share token not found")
	// ErrExpired means the token's expiry has passed.
	ErrExpired = errors.New("share token expired")
	// ErrExhausted means the token's access budget is spent. Exhaustion is
	// permanent even if the expiry has not passed.
	ErrExhausted = errors.New("share token exhausted")
	// ErrPassword means the supplied passphrase did not match.
	ErrPassword = errors.New("share password mismatch")
	// ErrAccountRequired means the token is gated to signed-in principals.
	ErrAccountRequired = errors.New("share token requires an account")
)

// Token is a stored share record. AccessCount only ever increases, under a
// single-row atomic increment in the store.
type Token struct {
	Key            string    `json:"key"`
	Path           string    `json:"path"`
	ExpiresAt      time.Time `json:"expiresAt"` // zero means no expiry
	MaxAccesses    int64     `json:"maxAccesses"`
	AccessCount    int64     `json:"accessCount"`
	PasswordHash   string    `json:"-"`
	RequireAccount bool      `json:"requireAccount"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Expired reports whether the token's TTL has passed.
func (t Token) Expired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// Exhausted reports whether the access budget is spent. MaxAccesses <= 0
// means unlimited.
func (t Token) Exhausted() bool {
	return t.MaxAccesses > 0 && t.AccessCount >= t.MaxAccesses
}

// PasswordProtected reports whether redeeming requires a passphrase.
func (t Token) PasswordProtected() bool {
	return t.PasswordHash != ""
}

// Store is the persistence interface for share tokens.
type Store interface {
	CreateShare(ctx context.Context, tok Token) error
	// GetShare returns ErrNotFound for unknown keys.
	GetShare(ctx context.Context, key string) (Token, error)
	// IncrementShareAccess atomically bumps the access count and returns the
	// new value. It must be a single-row atomic increment, not read-then-write.
	IncrementShareAccess(ctx context.Context, key string) (int64, error)
	DeleteShare(ctx context.Context, key string) error
	DeleteExpiredShares(ctx context.Context, before time.Time) (int64, error)
}
