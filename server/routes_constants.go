package server

const (
	RouteAPIPrefix = "/api/v1"
	RouteRegister  = "/register"
	RouteLogin     = "/login"
	RouteLogout    = "/logout"
	RouteMe        = "/me"
	RouteHealth    = "/healthz"
	RouteMetrics   = "/metrics"
)
