package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jrsteele09/go-recipe-auth/auth"
	"github.com/jrsteele09/go-recipe-auth/internal/config"
	"github.com/jrsteele09/go-recipe-auth/internal/metrics"
	"github.com/jrsteele09/go-recipe-auth/server"
	"github.com/jrsteele09/go-recipe-auth/sessions/redisstore"
	"github.com/jrsteele09/go-recipe-auth/token"
	"github.com/jrsteele09/go-recipe-auth/users"
	fakeuserrepo "github.com/jrsteele09/go-recipe-auth/users/repofake"
)

type testFixture struct {
	redis    *miniredis.Miniredis
	userRepo *fakeuserrepo.FakeUserRepo
	registry *prometheus.Registry
	server   *server.Server
}

func setupTestFixture(t *testing.T, options ...server.Option) *testFixture {
	t.Helper()
	return setupTestFixtureWithLimit(t, "1", "100", options...)
}

func setupTestFixtureWithLimit(t *testing.T, perSecond, burst string, options ...server.Option) *testFixture {
	t.Helper()
	t.Setenv("ENV", "test")
	t.Setenv("JWT_SECRET", "server-test-secret")
	t.Setenv("SESSION_BACKEND", "redis")
	t.Setenv("USER_BACKEND", "memory")
	t.Setenv("ALLOWED_ORIGINS", "https://recipes.example")
	t.Setenv("AUTH_RATE_LIMIT", perSecond)
	t.Setenv("AUTH_RATE_BURST", burst)
	t.Setenv("TRUSTED_PROXIES", "")

	cfg, err := config.New("testdata/does-not-exist.env")
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client, err := redisstore.Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	signer, err := token.NewHMACSigner(cfg.GetJWTSecret())
	require.NoError(t, err)
	issuer, err := token.NewIssuer(signer)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	userRepo := fakeuserrepo.NewFakeUserRepo()

	authService, err := auth.NewService(
		auth.Repos{Users: userRepo, Sessions: redisstore.New(client)},
		issuer,
		users.NewBcryptHasher(bcrypt.MinCost),
		auth.WithLogger(zerolog.Nop()),
		auth.WithMetrics(collector),
	)
	require.NoError(t, err)

	srv, err := server.New(cfg, authService, collector, reg, options...)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testFixture{redis: mr, userRepo: userRepo, registry: reg, server: srv}
}

func (f *testFixture) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Field   string          `json:"field"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

var jane = auth.RegisterInput{FullName: "Jane Doe", Email: "Jane@X.com", Password: "Abcdefg1"}

func TestServer_AuthFlow(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/register", jane, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	env := decode(t, rec)
	require.Equal(t, "User registered successfully", env.Message)
	require.NotContains(t, string(env.Data), "password")

	var user users.User
	require.NoError(t, json.Unmarshal(env.Data, &user))
	require.Equal(t, "jane@x.com", user.Email)

	rec = f.do(t, http.MethodPost, "/api/v1/login", auth.LoginInput{Email: "JANE@x.com", Password: "Abcdefg1"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	env = decode(t, rec)
	require.Equal(t, "Login successful", env.Message)

	var login auth.LoginResult
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.Equal(t, user.ID, login.UserID)
	require.NotEmpty(t, login.Token)
	require.Len(t, f.redis.Keys(), 1)

	rec = f.do(t, http.MethodGet, "/api/v1/me", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me users.User
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &me))
	require.Equal(t, user.ID, me.ID)

	rec = f.do(t, http.MethodPost, "/api/v1/logout", nil, login.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Logged out successfully", decode(t, rec).Message)
	require.Empty(t, f.redis.Keys())

	rec = f.do(t, http.MethodGet, "/api/v1/me", nil, login.Token)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "invalid or expired session", decode(t, rec).Error)
}

func TestServer_ErrorMapping(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/register", jane, "").Code)

	t.Run("validation is 400 with field", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/register", auth.RegisterInput{FullName: "Jane", Email: "jane@x.com", Password: "short"}, "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		env := decode(t, rec)
		require.Equal(t, "password", env.Field)
		require.Equal(t, "Password must be at least 8 characters long", env.Error)
	})

	t.Run("malformed body is 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate email is 409", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/register", jane, "")
		require.Equal(t, http.StatusConflict, rec.Code)
		require.Equal(t, "email already registered", decode(t, rec).Error)
	})

	t.Run("bad credentials are 401 with one message", func(t *testing.T) {
		unknown := f.do(t, http.MethodPost, "/api/v1/login", auth.LoginInput{Email: "nobody@x.com", Password: "Abcdefg1"}, "")
		wrong := f.do(t, http.MethodPost, "/api/v1/login", auth.LoginInput{Email: "jane@x.com", Password: "Wrong1234"}, "")
		require.Equal(t, http.StatusUnauthorized, unknown.Code)
		require.Equal(t, http.StatusUnauthorized, wrong.Code)
		require.Equal(t, unknown.Body.String(), wrong.Body.String())
	})

	t.Run("store failure is 500 without detail", func(t *testing.T) {
		f.userRepo.FailWith = errors.New("pq: connection reset by peer")
		defer func() { f.userRepo.FailWith = nil }()

		rec := f.do(t, http.MethodPost, "/api/v1/login", auth.LoginInput{Email: "jane@x.com", Password: "Abcdefg1"}, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "internal server error", decode(t, rec).Error)
		require.NotContains(t, rec.Body.String(), "connection reset")
	})

	t.Run("unknown route is 404", func(t *testing.T) {
		require.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/recipes", nil, "").Code)
	})
}

func TestServer_RequireAuth(t *testing.T) {
	f := setupTestFixture(t)

	tests := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"empty bearer":   "Bearer ",
	}
	for name, header := range tests {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			f.server.ServeHTTP(rec, req)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Equal(t, "Please authenticate", decode(t, rec).Error)
		})
	}

	t.Run("garbage token", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/me", nil, "not.a.token")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.Equal(t, "invalid or expired token", decode(t, rec).Error)
	})

	t.Run("session store down fails closed", func(t *testing.T) {
		require.Equal(t, http.StatusCreated, f.do(t, http.MethodPost, "/api/v1/register", jane, "").Code)
		rec := f.do(t, http.MethodPost, "/api/v1/login", auth.LoginInput{Email: jane.Email, Password: jane.Password}, "")
		require.Equal(t, http.StatusOK, rec.Code)
		var login auth.LoginResult
		require.NoError(t, json.Unmarshal(decode(t, rec).Data, &login))

		f.redis.Close()
		rec = f.do(t, http.MethodGet, "/api/v1/me", nil, login.Token)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		// Logout never fails, even with the store gone
		rec = f.do(t, http.MethodPost, "/api/v1/logout", nil, login.Token)
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Bearer abc", token: "abc", ok: true},
		{header: "bearer abc", token: "abc", ok: true},
		{header: "BEARER  abc ", token: "abc", ok: true},
		{header: "Bearer", ok: false},
		{header: "Token abc", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", tt.header)
		token, ok := server.BearerToken(req)
		require.Equal(t, tt.ok, ok, tt.header)
		require.Equal(t, tt.token, token, tt.header)
	}
}

func TestServer_RateLimit(t *testing.T) {
	f := setupTestFixtureWithLimit(t, "0.001", "2")

	body := auth.LoginInput{Email: "jane@x.com", Password: "Abcdefg1"}
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/login", body, "").Code)
	require.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodPost, "/api/v1/login", body, "").Code)

	rec := f.do(t, http.MethodPost, "/api/v1/login", body, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// Other clients have their own bucket
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/login", &buf)
	req.RemoteAddr = "203.0.113.9:52000"
	other := httptest.NewRecorder()
	f.server.ServeHTTP(other, req)
	require.Equal(t, http.StatusUnauthorized, other.Code)

	count, err := testutil.GatherAndCount(f.registry, "recipeauth_rate_limited_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)

	// Unlimited routes are unaffected
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/logout", nil, "").Code)
}

func TestServer_Cors(t *testing.T) {
	f := setupTestFixture(t)

	t.Run("preflight from allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/login", nil)
		req.Header.Set("Origin", "https://recipes.example")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "https://recipes.example", rec.Header().Get("Access-Control-Allow-Origin"))
		require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})

	t.Run("unknown origin gets no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/login", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		f.server.ServeHTTP(rec, req)
		require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := setupTestFixture(t,
		server.WithHealthCheck("sessions", func(context.Context) error { return nil }),
	)

	rec := f.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"sessions":"ok"`)

	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "recipeauth_http_requests_total")

	t.Run("failing dependency is 503", func(t *testing.T) {
		f := setupTestFixture(t,
			server.WithHealthCheck("users", func(context.Context) error { return errors.New("down") }),
		)
		rec := f.do(t, http.MethodGet, "/healthz", nil, "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Contains(t, rec.Body.String(), `"users":"unavailable"`)
	})
}
