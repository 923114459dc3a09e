package users

import (
	"context"

	errs "github.com/jrsteele09/go-recipe-auth/internal/errors"
)

var (
	// ErrNotFound is returned when no user matches the lookup
	ErrNotFound = errs.ErrNotFound
	// ErrConflict is returned by Insert when the email is already taken
	ErrConflict = errs.ErrConflict
)

// Repo is the user directory. Implementations must enforce email uniqueness themselves
// and report a violation as ErrConflict.
type Repo interface {
	FindByEmail(ctx context.Context, normalizedEmail string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Insert(ctx context.Context, user *User) (*User, error)
}
