package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-recipe-auth/sessions"
	"github.com/jrsteele09/go-recipe-auth/token"
	"github.com/jrsteele09/go-recipe-auth/users"
)

// Flow names, used for logging and metrics
const (
	FlowRegister     = "register"
	FlowLogin        = "login"
	FlowAuthenticate = "authenticate"
	FlowLogout       = "logout"
	FlowCurrentUser  = "current_user"
)

// Attempt outcomes reported to a MetricsRecorder
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid"
	OutcomeConflict     = "conflict"
	OutcomeUnauthorized = "unauthorized"
	OutcomeError        = "error"
)

// Repos holds the storage dependencies of the Service
type Repos struct {
	Users    users.Repo     // User directory
	Sessions sessions.Store // Server side sessions keyed by token
}

// MetricsRecorder receives one observation per gateway call
type MetricsRecorder interface {
	ObserveAuthAttempt(flow, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAuthAttempt(string, string) {}

// LoginResult is returned by a successful login. Token always has a backing session.
type LoginResult struct {
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Service is the auth gateway: registration, login, request authentication and logout.
// It holds no per-call state and is safe for concurrent use.
type Service struct {
	repos   Repos
	issuer  *token.Issuer
	hasher  users.Hasher
	logger  zerolog.Logger
	metrics MetricsRecorder
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithLogger sets the logger used for internal failures
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the recorder for attempt outcomes
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(repos Repos, issuer *token.Issuer, hasher users.Hasher, options ...ServiceOption) (*Service, error) {
	if repos.Users == nil {
		return nil, errors.New("[NewService] Users repo is required")
	}
	if repos.Sessions == nil {
		return nil, errors.New("[NewService] Sessions store is required")
	}
	if issuer == nil {
		return nil, errors.New("[NewService] issuer is required")
	}
	if hasher == nil {
		return nil, errors.New("[NewService] hasher is required")
	}

	s := &Service{
		repos:   repos,
		issuer:  issuer,
		hasher:  hasher,
		logger:  log.Logger,
		metrics: noopMetrics{},
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Register creates a new identity. The returned user never carries the password hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*users.User, error) {
	if err := ValidateRegistration(in); err != nil {
		s.metrics.ObserveAuthAttempt(FlowRegister, OutcomeInvalid)
		return nil, err
	}
	email := users.NormalizeEmail(in.Email)

	_, err := s.repos.Users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, s.fail(FlowRegister, ErrConflict, msgEmailTaken, nil)
	case !errors.Is(err, users.ErrNotFound):
		return nil, s.fail(FlowRegister, ErrInternal, msgInternal, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(FlowRegister, ErrInternal, msgInternal, err)
	}

	user, err := s.repos.Users.Insert(ctx, &users.User{
		Email:        email,
		FullName:     strings.TrimSpace(in.FullName),
		PasswordHash: hash,
	})
	if errors.Is(err, users.ErrConflict) {
		// Lost a race with a concurrent registration of the same email
		return nil, s.fail(FlowRegister, ErrConflict, msgEmailTaken, err)
	}
	if err != nil {
		return nil, s.fail(FlowRegister, ErrInternal, msgInternal, err)
	}

	s.metrics.ObserveAuthAttempt(FlowRegister, OutcomeSuccess)
	s.logger.Info().Str("flow", FlowRegister).Str("user_id", user.ID).Msg("user registered")
	return user.Public(), nil
}

// Login checks credentials and opens a session. No token is returned unless its session was stored.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := ValidateLogin(in); err != nil {
		s.metrics.ObserveAuthAttempt(FlowLogin, OutcomeInvalid)
		return nil, err
	}
	email := users.NormalizeEmail(in.Email)

	user, err := s.repos.Users.FindByEmail(ctx, email)
	if errors.Is(err, users.ErrNotFound) {
		return nil, s.fail(FlowLogin, ErrUnauthorized, msgInvalidCredentials, err)
	}
	if err != nil {
		return nil, s.fail(FlowLogin, ErrInternal, msgInternal, err)
	}

	if !s.hasher.Verify(in.Password, user.PasswordHash) {
		return nil, s.fail(FlowLogin, ErrUnauthorized, msgInvalidCredentials, nil)
	}

	raw, claims, err := s.issuer.Issue(user.ID, user.Email)
	if err != nil {
		return nil, s.fail(FlowLogin, ErrInternal, msgInternal, err)
	}

	if err := s.repos.Sessions.Create(ctx, raw, user.ID, s.issuer.Expiry()); err != nil {
		return nil, s.fail(FlowLogin, ErrInternal, msgInternal, err)
	}

	s.metrics.ObserveAuthAttempt(FlowLogin, OutcomeSuccess)
	return &LoginResult{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}

// Authenticate returns the user id behind a bearer token. The token must verify and still have a
// live session owned by the same user.
func (s *Service) Authenticate(ctx context.Context, raw string) (string, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return "", s.fail(FlowAuthenticate, ErrUnauthorized, msgInvalidToken, err)
	}

	userID, err := s.repos.Sessions.Resolve(ctx, raw)
	if errors.Is(err, sessions.ErrNotFound) {
		return "", s.fail(FlowAuthenticate, ErrUnauthorized, msgInvalidSession, err)
	}
	if err != nil {
		return "", s.fail(FlowAuthenticate, ErrInternal, msgInternal, err)
	}
	if userID != claims.UserID {
		s.logger.Warn().Str("flow", FlowAuthenticate).Str("user_id", claims.UserID).Msg("session owner does not match token subject")
		return "", s.fail(FlowAuthenticate, ErrUnauthorized, msgInvalidSession, nil)
	}

	s.metrics.ObserveAuthAttempt(FlowAuthenticate, OutcomeSuccess)
	return userID, nil
}

// Logout revokes the session for raw. It always succeeds, store failures are only logged.
func (s *Service) Logout(ctx context.Context, raw string) {
	if raw == "" {
		s.metrics.ObserveAuthAttempt(FlowLogout, OutcomeInvalid)
		return
	}
	if err := s.repos.Sessions.Revoke(ctx, raw); err != nil {
		s.logger.Err(err).Str("flow", FlowLogout).Msg("failed to revoke session")
		s.metrics.ObserveAuthAttempt(FlowLogout, OutcomeError)
		return
	}
	s.metrics.ObserveAuthAttempt(FlowLogout, OutcomeSuccess)
}

// CurrentUser loads the identity behind an authenticated user id
func (s *Service) CurrentUser(ctx context.Context, userID string) (*users.User, error) {
	user, err := s.repos.Users.FindByID(ctx, userID)
	if errors.Is(err, users.ErrNotFound) {
		return nil, s.fail(FlowCurrentUser, ErrUnauthorized, msgInvalidSession, err)
	}
	if err != nil {
		return nil, s.fail(FlowCurrentUser, ErrInternal, msgInternal, err)
	}
	s.metrics.ObserveAuthAttempt(FlowCurrentUser, OutcomeSuccess)
	return user.Public(), nil
}

func (s *Service) fail(flow string, kind error, message string, cause error) error {
	outcome := OutcomeError
	switch kind {
	case ErrConflict:
		outcome = OutcomeConflict
	case ErrUnauthorized:
		outcome = OutcomeUnauthorized
	case ErrValidation:
		outcome = OutcomeInvalid
	}
	s.metrics.ObserveAuthAttempt(flow, outcome)

	if kind == ErrInternal {
		s.logger.Err(cause).Str("flow", flow).Msg("auth flow failed")
	} else {
		s.logger.Debug().AnErr("cause", cause).Str("flow", flow).Str("outcome", outcome).Msg(message)
	}
	return newError(kind, message, cause)
}
