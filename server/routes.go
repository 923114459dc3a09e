package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jrsteele09/go-recipe-auth/internal/metrics"
)

func (s *Server) initRoutes() {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		s.LoggingMiddleware,
		s.RecoverMiddleware,
		s.metrics.Instrument,
		s.CorsMiddleware,
	)

	r.Get(RouteHealth, s.HealthHandler())
	r.Method(http.MethodGet, RouteMetrics, metrics.Handler(s.gatherer))

	r.Route(RouteAPIPrefix, func(r chi.Router) {
		limited := r.With(s.limiter.Middleware(s.metrics))
		limited.Post(RouteRegister, s.RegisterHandler())
		limited.Post(RouteLogin, s.LoginHandler())
		r.Post(RouteLogout, s.LogoutHandler())
		r.With(s.RequireAuth).Get(RouteMe, s.MeHandler())
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})

	s.router = r
}
