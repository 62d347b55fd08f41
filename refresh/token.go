package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/userauth/internal"
)

// ErrNotFound is returned by FindByToken when no record matches.
var ErrNotFound = errors.New("refresh token not found")

// Record is the persisted state of one refresh token.
type Record struct {
	TokenHash string
	UserID    int64
	ExpiresAt time.Time
	Revoked   bool
}

// Usable reports whether the token may still mint access tokens at now.
func (r *Record) Usable(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}

// Store persists refresh tokens. Implementations must be safe for concurrent use.
type Store interface {
	Save(ctx context.Context, token string, userID int64, expiresAt time.Time) error
	FindByToken(ctx context.Context, token string) (*Record, error)
	// RevokeAllForUser marks every token of userID revoked. Idempotent.
	RevokeAllForUser(ctx context.Context, userID int64) error
	// Rotate is RevokeAllForUser followed by Save, applied atomically.
	Rotate(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	// SweepExpiredAndRevoked deletes records that can never be used again and
	// returns how many were removed.
	SweepExpiredAndRevoked(ctx context.Context, now time.Time) (int64, error)
}

// NewToken returns a fresh opaque refresh token.
func NewToken() (string, error) {
	return internal.NewOpaqueToken()
}

// WellFormed reports whether token has the shape NewToken produces. Tokens that
// fail it cannot exist in any Store.
func WellFormed(token string) bool {
	_, err := internal.DecodeOpaqueToken(token)
	return err == nil
}

// HashToken returns the hex SHA-256 of token, the key every Store indexes by.
func HashToken(token string) string {
	return internal.HashToken(token)
}
