package router_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buymart/dealflow-api/internal/auth"
	"github.com/buymart/dealflow-api/internal/config"
	"github.com/buymart/dealflow-api/internal/http/middleware"
	"github.com/buymart/dealflow-api/internal/http/router"
	"github.com/buymart/dealflow-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRouter(t *testing.T, swagger bool) http.Handler {
	t.Helper()
	cfg := &config.Config{
		App:       config.AppConfig{Environment: "development"},
		Auth:      config.AuthConfig{APIKey: "router-test-key", JWTSecret: "router-test-secret"},
		Server:    config.ServerConfig{EnableSwagger: swagger},
		Security:  config.SecurityConfig{ContentTypeNosniff: true, FrameOptions: "DENY"},
		RateLimit: config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1000, WhitelistPaths: []string{"/health", "/health/*"}},
	}
	logger := zap.NewNop()
	db := testutil.SetupTestDB(t)

	rt := router.NewRouter(cfg, logger, db, auth.NewMiddleware(cfg, logger), middleware.NewRateLimiter(&cfg.RateLimit, logger), router.Handlers{})
	return rt.Setup()
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestRouter_Health(t *testing.T) {
	h := setupRouter(t, false)

	w := serve(h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestRouter_DatabaseHealth(t *testing.T) {
	h := setupRouter(t, false)

	w := serve(h, http.MethodGet, "/health/db")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "database", body["service"])
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats["max_open_connections"])
}

func TestRouter_APIRequiresAuthentication(t *testing.T) {
	h := setupRouter(t, false)

	for _, path := range []string{"/api/v1/deals", "/api/v1/timeline/summary", "/api/v1/notifications"} {
		w := serve(h, http.MethodGet, path)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deals", nil)
	req.Header.Set("x-api-key", "wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_Swagger(t *testing.T) {
	w := serve(setupRouter(t, false), http.MethodGet, "/swagger/doc.json")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(setupRouter(t, true), http.MethodGet, "/swagger/doc.json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Dealflow API")
}
