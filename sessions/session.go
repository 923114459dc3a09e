package sessions

import (
	"context"
	"time"

	errs "github.com/jrsteele09/go-recipe-auth/internal/errors"
)

// ErrNotFound is returned by Resolve when a token has no live session. Absent, revoked and
// expired sessions are deliberately indistinguishable.
var ErrNotFound = errs.ErrNotFound

// Session is the server-side record that makes a bearer token usable.
// The store is the authority for validity, the token's own expiry is checked separately.
type Session struct {
	Token     string    // Bearer token the session is keyed by
	UserID    string    // Owner of the session
	ExpiresAt time.Time // After this the session resolves as ErrNotFound
}

// Expired reports whether the session has lapsed at now
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store keeps token to user associations. Implementations must be safe for concurrent use.
type Store interface {
	// Create stores token -> userID for ttl. A second Create for the same token replaces the first.
	Create(ctx context.Context, token, userID string, ttl time.Duration) error

	// Resolve returns the user id for a live session or ErrNotFound
	Resolve(ctx context.Context, token string) (string, error)

	// Revoke removes the session. Revoking an unknown token is not an error.
	Revoke(ctx context.Context, token string) error
}
