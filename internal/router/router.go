package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/drivermed-api/internal/handler/health"
	"github.com/jwalitptl/drivermed-api/internal/handler/prometheus"
	"github.com/jwalitptl/drivermed-api/internal/middleware"
	"github.com/jwalitptl/drivermed-api/internal/model"
)

const (
	apiPrefix   = "/api/v1"
	webhookPath = apiPrefix + "/payments/webhook"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type AdminHandler interface {
	RegisterAdminRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Production       bool
	RequestTimeout   time.Duration
	MaxBodyBytes     int64
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	CORSConfig       middleware.CORSConfig
}

// Handlers groups the route owners. Catalog reads are cacheable by browsers and CDNs;
// every other public route carries personal data or live availability.
type Handlers struct {
	Health  *health.Handler
	Metrics *prometheus.Handler

	Catalog Handler
	Public  []Handler
	Admin   []AdminHandler
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	handlers Handlers
	config   RouterConfig
}

func NewRouter(config RouterConfig, auth *middleware.AuthMiddleware, handlers Handlers) *Router {
	if config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	r := &Router{
		engine:   engine,
		auth:     auth,
		handlers: handlers,
		config:   config,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		handlers.Metrics.Middleware(),
		middleware.SecurityHeaders(middleware.DefaultSecurityConfig(config.Production)),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.SizeLimitConfig{
			MaxBodySize:   config.MaxBodyBytes,
			MaxHeaderSize: middleware.DefaultSizeLimitConfig().MaxHeaderSize,
		}),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	return r
}

func (r *Router) Setup() {
	r.setupHealthCheck(r.engine.Group(""))

	api := r.engine.Group(apiPrefix)
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:       r.config.RateLimit,
			Burst:      r.config.RateBurst,
			SkipRoutes: []string{webhookPath},
		})
		api.Use(limiter.RateLimit())
	}

	r.setupPublicRoutes(api)

	admin := api.Group("/admin")
	admin.Use(
		r.auth.RequireRole(model.RoleAdmin),
		middleware.Cache(middleware.NoStoreCacheConfig()),
	)
	r.setupAdminRoutes(admin)
}

func (r *Router) setupHealthCheck(rg *gin.RouterGroup) {
	r.handlers.Health.RegisterRoutes(rg)
	rg.GET("/health/metrics", r.handlers.Metrics.Handler())
}

func (r *Router) setupPublicRoutes(rg *gin.RouterGroup) {
	if r.handlers.Catalog != nil {
		catalog := rg.Group("")
		catalog.Use(middleware.Cache(middleware.PublicCatalogCacheConfig()))
		r.handlers.Catalog.RegisterRoutes(catalog)
	}

	public := rg.Group("")
	public.Use(middleware.Cache(middleware.NoStoreCacheConfig()))
	for _, h := range r.handlers.Public {
		h.RegisterRoutes(public)
	}
}

func (r *Router) setupAdminRoutes(rg *gin.RouterGroup) {
	for _, h := range r.handlers.Admin {
		h.RegisterAdminRoutes(rg)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
