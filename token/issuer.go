package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// DefaultExpiry is the fixed lifetime of an issued token. It is not sliding and cannot be renewed.
const DefaultExpiry = 24 * time.Hour

// ErrTokenInvalid covers every verification failure: bad signature, malformed input, wrong
// algorithm, missing claims or expiry.
var ErrTokenInvalid = errors.New("invalid token")

// Claims is the identity asserted by a token
type Claims struct {
	ID        string    // Unique token id (jti)
	UserID    string    // Subject user id
	Email     string    // Normalised email at issuance
	IssuedAt  time.Time // iat
	ExpiresAt time.Time // exp
}

type authClaims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Issuer creates and verifies signed, time-bounded bearer tokens
type Issuer struct {
	signer  Signer
	issuer  string
	expiry  time.Duration
	nowFunc func() time.Time
}

type IssuerOption func(*Issuer)

// WithNowFunc sets the clock (primarily for testing)
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// WithIssuer sets the iss claim. Tokens from a different issuer fail verification.
func WithIssuer(issuer string) IssuerOption {
	return func(i *Issuer) {
		i.issuer = issuer
	}
}

func NewIssuer(signer Signer, options ...IssuerOption) (*Issuer, error) {
	if signer == nil {
		return nil, errors.New("[NewIssuer] signer is required")
	}
	i := &Issuer{
		signer:  signer,
		expiry:  DefaultExpiry,
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(i)
	}
	return i, nil
}

// Expiry returns how long issued tokens stay valid
func (i *Issuer) Expiry() time.Duration {
	return i.expiry
}

// Issue signs a token for the user valid from now until now+Expiry.
func (i *Issuer) Issue(userID, email string) (string, Claims, error) {
	if userID == "" {
		return "", Claims{}, errors.New("[Issuer.Issue] userID is required")
	}

	// NumericDate has second precision, truncate so the returned claims match what Verify yields
	now := i.nowFunc().UTC().Truncate(time.Second)
	claims := Claims{
		ID:        uuid.New().String(),
		UserID:    userID,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(i.expiry),
	}

	raw, err := i.signer.Sign(authClaims{
		UserID: claims.UserID,
		Email:  claims.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   claims.UserID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	if err != nil {
		return "", Claims{}, errors.Wrap(err, "[Issuer.Issue] signer.Sign")
	}
	return raw, claims, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
// Every failure is reported as ErrTokenInvalid.
func (i *Issuer) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty token", ErrTokenInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{i.signer.GetSigningMethod().Alg()}),
		jwt.WithTimeFunc(i.nowFunc),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	parsed, err := jwt.ParseWithClaims(raw, &authClaims{}, i.signer.GetVerificationKey, opts...)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	ac, ok := parsed.Claims.(*authClaims)
	if !ok || !parsed.Valid {
		return Claims{}, fmt.Errorf("%w: unexpected claims", ErrTokenInvalid)
	}
	if ac.UserID == "" || ac.UserID != ac.Subject {
		return Claims{}, fmt.Errorf("%w: subject mismatch", ErrTokenInvalid)
	}

	claims := Claims{
		ID:        ac.ID,
		UserID:    ac.UserID,
		Email:     ac.Email,
		ExpiresAt: ac.ExpiresAt.Time.UTC(),
	}
	if ac.IssuedAt != nil {
		claims.IssuedAt = ac.IssuedAt.Time.UTC()
	}
	return claims, nil
}
