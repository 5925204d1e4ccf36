package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-admin/internal/handler"
	"github.com/jwalitptl/hospital-admin/internal/middleware"
	"github.com/jwalitptl/hospital-admin/internal/model"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// DoctorHandler takes the middleware guarding admin-only routes.
type DoctorHandler interface {
	RegisterRoutes(r *gin.RouterGroup, admin gin.HandlerFunc)
}

type HealthHandler interface {
	RegisterRoutes(gin.IRouter)
}

type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	authH   Handler
	doctorH DoctorHandler
	healthH HealthHandler
	config  RouterConfig
}

type RouterConfig struct {
	RequestTimeout time.Duration
	RateLimit      rate.Limit
	RateBurst      int
	RateEnabled    bool
	AllowedOrigins []string
	MetricsPrefix  string
	Registry       *prometheus.Registry
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	authH Handler,
	doctorH DoctorHandler,
	healthH HealthHandler,
	config RouterConfig,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()

	r := &Router{
		engine:  engine,
		auth:    auth,
		authH:   authH,
		doctorH: doctorH,
		healthH: healthH,
		config:  config,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		middleware.NewHTTPMetrics(config.MetricsPrefix, config.Registry).Middleware(),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)

	engine.Use(cors.New(corsConfig(config.AllowedOrigins)))

	if config.RateEnabled {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", "X-Request-ID")
	cfg.ExposeHeaders = []string{"X-Request-ID"}
	return cfg
}

func (r *Router) Setup() {
	r.healthH.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", handler.MetricsHandler(r.config.Registry))

	api := r.engine.Group("/api/v1")

	// Verification links are opened by doctors from their mailbox.
	r.authH.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.doctorH.RegisterRoutes(protected, r.auth.RequireRole(model.OperatorRoleAdmin))
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
