package users

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-recipe-auth/internal/utils"
)

// User is an identity record owned by the user directory.
// PasswordHash is never serialised and is stripped before leaving the auth gateway.
type User struct {
	ID           string    `json:"id"`        // Unique identifier (UUID)
	Email        string    `json:"email"`     // Normalised (trimmed, lowercase) email, unique
	FullName     string    `json:"fullName"`  // Display name
	PasswordHash string    `json:"-"`         // bcrypt hash - never serialize
	Avatar       *string   `json:"avatar"`    // Optional avatar URL, empty on registration
	Bio          *string   `json:"bio"`       // Optional biography, empty on registration
	CreatedAt    time.Time `json:"createdAt"` // When the identity was created
	UpdatedAt    time.Time `json:"updatedAt"` // Last profile change
}

// NormalizeEmail trims and lowercases an email so it can be compared and used as a lookup key
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Clone returns a deep copy of the user
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.Avatar = utils.Clone(u.Avatar)
	cp.Bio = utils.Clone(u.Bio)
	return &cp
}

// Public returns a copy of the user that is safe to hand to callers
func (u *User) Public() *User {
	cp := u.Clone()
	if cp != nil {
		cp.PasswordHash = ""
	}
	return cp
}
