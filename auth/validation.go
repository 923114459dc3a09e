package auth

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxEmailLength       = 254
	minPasswordLength    = 8
	minFullNameLength    = 2
	maxFullNameLength    = 100
	fieldEmail           = "email"
	fieldPassword        = "password"
	fieldFullName        = "fullName"
	msgEmailRequired     = "Email is required"
	msgEmailInvalid      = "Please enter a valid email address"
	msgEmailTooLong      = "Email address is too long"
	msgPasswordRequired  = "Password is required"
	msgPasswordTooShort  = "Password must be at least 8 characters long"
	msgPasswordWeak      = "Password must contain at least one uppercase letter, one lowercase letter, and one number"
	msgFullNameRequired  = "Full name is required"
	msgFullNameTooShort  = "Full name must be at least 2 characters long"
	msgFullNameTooLong   = "Full name is too long"
	msgFullNameBadFormat = "Full name can only contain letters, spaces, apostrophes, and hyphens"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// RegisterInput is the payload for creating an identity
type RegisterInput struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginInput holds transient credentials. They are never stored.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ValidateEmail checks presence, shape and length, in that order
func ValidateEmail(email string) error {
	if email == "" {
		return newValidationError(fieldEmail, msgEmailRequired)
	}
	if !emailPattern.MatchString(email) {
		return newValidationError(fieldEmail, msgEmailInvalid)
	}
	if len(email) > maxEmailLength {
		return newValidationError(fieldEmail, msgEmailTooLong)
	}
	return nil
}

// ValidatePassword enforces the password policy: at least 8 characters with an upper case
// letter, a lower case letter and a digit.
func ValidatePassword(password string) error {
	if password == "" {
		return newValidationError(fieldPassword, msgPasswordRequired)
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return newValidationError(fieldPassword, msgPasswordTooShort)
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return newValidationError(fieldPassword, msgPasswordWeak)
	}
	return nil
}

// ValidateFullName accepts letters, whitespace, apostrophes and hyphens
func ValidateFullName(fullName string) error {
	if fullName == "" {
		return newValidationError(fieldFullName, msgFullNameRequired)
	}
	if utf8.RuneCountInString(strings.TrimSpace(fullName)) < minFullNameLength {
		return newValidationError(fieldFullName, msgFullNameTooShort)
	}
	if utf8.RuneCountInString(fullName) > maxFullNameLength {
		return newValidationError(fieldFullName, msgFullNameTooLong)
	}
	for _, r := range fullName {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) && r != '\'' && r != '-' {
			return newValidationError(fieldFullName, msgFullNameBadFormat)
		}
	}
	return nil
}

// ValidateRegistration checks email, password then full name, stopping at the first failure
func ValidateRegistration(in RegisterInput) error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return err
	}
	return ValidateFullName(in.FullName)
}

// ValidateLogin checks the email and that a password was supplied. Strength is not checked on login.
func ValidateLogin(in LoginInput) error {
	if err := ValidateEmail(in.Email); err != nil {
		return err
	}
	if in.Password == "" {
		return newValidationError(fieldPassword, msgPasswordRequired)
	}
	return nil
}
