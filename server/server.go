package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-recipe-auth/auth"
	"github.com/jrsteele09/go-recipe-auth/internal/config"
	"github.com/jrsteele09/go-recipe-auth/internal/metrics"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

type Server struct {
	router   chi.Router
	config   config.Config
	auth     *auth.Service
	metrics  *metrics.Collector
	gatherer prometheus.Gatherer
	limiter  *ClientRateLimiter
	checks   map[string]HealthCheck
}

type Option func(*Server)

// WithHealthCheck adds a named dependency check to /healthz
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

func New(cfg config.Config, authService *auth.Service, collector *metrics.Collector, gatherer prometheus.Gatherer, options ...Option) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("[server.New] config is required")
	}
	if authService == nil {
		return nil, errors.New("[server.New] auth service is required")
	}
	if collector == nil || gatherer == nil {
		return nil, errors.New("[server.New] metrics collector and gatherer are required")
	}

	proxies, err := ParseTrustedProxies(cfg.GetTrustedProxies())
	if err != nil {
		return nil, errors.Wrap(err, "[server.New] trusted proxies")
	}

	s := &Server{
		config:   cfg,
		auth:     authService,
		metrics:  collector,
		gatherer: gatherer,
		limiter:  NewClientRateLimiter(cfg.GetAuthRateLimit(), cfg.GetAuthRateBurst(), WithTrustedProxies(proxies)),
		checks:   make(map[string]HealthCheck),
	}
	for _, opt := range options {
		opt(s)
	}

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background work owned by the server
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) logRoutes() {
	if !s.config.IsDev() {
		return // Skip logging in non-development environments
	}
	_ = chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		logRoute(method, strings.Replace(route, "/*/", "/", -1))
		return nil
	})
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Info().Msgf("[%-19s] %s", displayMethod, path)
}
