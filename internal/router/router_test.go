package router

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/drivermed-api/internal/handler/health"
	"github.com/jwalitptl/drivermed-api/internal/handler/prometheus"
	"github.com/jwalitptl/drivermed-api/internal/middleware"
	"github.com/jwalitptl/drivermed-api/pkg/auth"
)

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

type routes struct{}

func (routes) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/services", func(c *gin.Context) { c.Status(http.StatusOK) })
}

type bookings struct{}

func (bookings) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/bookings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/payments/webhook", func(c *gin.Context) { c.Status(http.StatusOK) })
}

type adminRoutes struct{}

func (adminRoutes) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/bookings", func(c *gin.Context) { c.Status(http.StatusOK) })
}

func newTestRouter(t *testing.T, db pinger) (*gin.Engine, auth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt := auth.NewJWTService("secret", "drivermed-api", time.Hour)
	r := NewRouter(RouterConfig{
		RequestTimeout:   time.Second,
		MaxBodyBytes:     1 << 20,
		RateLimitEnabled: true,
		RateLimit:        0.001,
		RateBurst:        3,
		CORSConfig:       middleware.DefaultCORSConfig(),
	}, middleware.NewAuthMiddleware(jwt), Handlers{
		Health:  health.NewHandler(db),
		Metrics: prometheus.New(),
		Catalog: routes{},
		Public:  []Handler{bookings{}},
		Admin:   []AdminHandler{adminRoutes{}},
	})
	r.Setup()
	return r.Engine(), jwt
}

func do(e *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestHealthRoutes(t *testing.T) {
	e, _ := newTestRouter(t, pinger{})
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, do(e, http.MethodGet, "/health/ready", "").Code)

	w := do(e, http.MethodGet, "/health/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")

	down, _ := newTestRouter(t, pinger{err: errors.New("connection refused")})
	assert.Equal(t, http.StatusServiceUnavailable, do(down, http.MethodGet, "/health/ready", "").Code)
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	e, jwt := newTestRouter(t, pinger{})

	assert.Equal(t, http.StatusUnauthorized, do(e, http.MethodGet, "/api/v1/admin/bookings", "").Code)

	staff, _, err := jwt.GenerateAccessToken(uuid.New(), "staff@example.com", "staff")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(e, http.MethodGet, "/api/v1/admin/bookings", staff).Code)

	admin, _, err := jwt.GenerateAccessToken(uuid.New(), "admin@example.com", "admin")
	require.NoError(t, err)
	w := do(e, http.MethodGet, "/api/v1/admin/bookings", admin)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
}

func TestCacheHeadersByRouteGroup(t *testing.T) {
	e, _ := newTestRouter(t, pinger{})

	w := do(e, http.MethodGet, "/api/v1/services", "")
	assert.Contains(t, w.Header().Get("Cache-Control"), "public")

	w = do(e, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "")
	assert.Equal(t, "private, no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))
}

func TestWebhookIsNotRateLimited(t *testing.T) {
	e, _ := newTestRouter(t, pinger{})

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/api/v1/payments/webhook", "").Code)
	}

	codes := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		codes = append(codes, do(e, http.MethodGet, "/api/v1/services", "").Code)
	}
	assert.Contains(t, codes, http.StatusTooManyRequests)
}
