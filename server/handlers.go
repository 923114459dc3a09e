package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-recipe-auth/auth"
)

const (
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body", "")
		return false
	}
	return true
}

// RegisterHandler creates a user. 201 with the user (no password hash) on success.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in auth.RegisterInput
		if !decodeJSON(w, r, &in) {
			return
		}

		user, err := s.auth.Register(r.Context(), in)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: "User registered successfully", Data: user})
	}
}

// LoginHandler exchanges credentials for a bearer token
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in auth.LoginInput
		if !decodeJSON(w, r, &in) {
			return
		}

		result, err := s.auth.Login(r.Context(), in)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", Data: result})
	}
}

// LogoutHandler revokes the presented token's session. It succeeds even without a token.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if token, ok := BearerToken(r); ok {
			s.auth.Logout(r.Context(), token)
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
	}
}

// MeHandler returns the authenticated user. Must be wrapped by RequireAuth.
func (s *Server) MeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserIDFromContext(r.Context())
		if !ok {
			writeJSONError(w, http.StatusUnauthorized, msgPleaseAuthenticate, "")
			return
		}

		user, err := s.auth.CurrentUser(r.Context(), userID)
		if err != nil {
			writeAuthError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "User retrieved successfully", Data: user})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler runs every registered dependency check. 503 if any fails.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.checks))}
		status := http.StatusOK
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				log.Err(err).Str("check", name).Msg("health check failed")
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
