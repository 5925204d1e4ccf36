package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/hospital-admin/internal/config"
	"github.com/jwalitptl/hospital-admin/internal/connectivity"
	"github.com/jwalitptl/hospital-admin/internal/email"
	authHandler "github.com/jwalitptl/hospital-admin/internal/handler/auth"
	doctorHandler "github.com/jwalitptl/hospital-admin/internal/handler/doctor"
	healthHandler "github.com/jwalitptl/hospital-admin/internal/handler/health"
	"github.com/jwalitptl/hospital-admin/internal/middleware"
	"github.com/jwalitptl/hospital-admin/internal/repository"
	"github.com/jwalitptl/hospital-admin/internal/repository/kv"
	"github.com/jwalitptl/hospital-admin/internal/repository/postgres"
	"github.com/jwalitptl/hospital-admin/internal/repository/staging"
	"github.com/jwalitptl/hospital-admin/internal/router"
	"github.com/jwalitptl/hospital-admin/internal/service/identity"
	"github.com/jwalitptl/hospital-admin/internal/service/notification"
	"github.com/jwalitptl/hospital-admin/internal/service/onboarding"
	"github.com/jwalitptl/hospital-admin/pkg/auth"
	"github.com/jwalitptl/hospital-admin/pkg/logger"
	"github.com/jwalitptl/hospital-admin/pkg/messaging"
	"github.com/jwalitptl/hospital-admin/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
	"github.com/jwalitptl/hospital-admin/pkg/security"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = lg.ZL
	zl := &lg.ZL

	ctx := context.Background()

	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	base := postgres.NewBaseRepository(db)
	if cfg.Database.RunMigrations {
		if err := postgres.RunMigrations(ctx, base, cfg.Database.MigrationsDir, zl); err != nil {
			log.Fatal().Err(err).Msg("failed to run migrations")
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(cfg.Server.MetricsPrefix, registry)

	monitor := connectivity.NewMonitor(cfg.Connectivity.Timeout, cfg.Connectivity.CacheTTL, zl)
	monitor.AddCheck("postgres", connectivity.PingCheck(db))

	var (
		redisClient *goredis.Client
		broker      messaging.Broker
	)
	if cfg.Redis.URL != "" {
		redisClient, err = redis.NewClient(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		broker = redis.NewRedisBroker(redisClient, zl)
		defer broker.Close()
		monitor.AddCheck("redis", connectivity.RedisCheck(redisClient))
	}

	var store repository.KeyValueStore
	switch cfg.Staging.Backend {
	case config.StagingBackendRedis:
		if redisClient == nil {
			log.Fatal().Msg("staging backend redis requires redis.url")
		}
		store = kv.NewRedisStore(redisClient, cfg.Staging.KeyPrefix)
	default:
		store = kv.NewMemoryStore()
	}
	stagingRepo := staging.NewRepository(store, staging.Keys{
		Pending:    cfg.Staging.PendingKey,
		Registered: cfg.Staging.RegisteredKey,
	}, appMetrics)

	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer)
	emailSvc := email.NewSMTPService(cfg.SMTP, zl)
	identitySvc := identity.NewService(
		postgres.NewAccountRepository(base),
		security.NewBcryptHasher(cfg.Onboarding.BcryptCost),
		jwtSvc,
		emailSvc,
		identity.Config{
			VerificationURL: cfg.Onboarding.VerificationURL,
			VerificationTTL: cfg.JWT.VerificationTTL,
			RecoveryTTL:     cfg.JWT.RecoveryTTL,
		},
		zl,
	)
	notifier := notification.NewService(broker, appMetrics, zl)

	onboardingSvc, err := onboarding.NewService(onboarding.Dependencies{
		Staging:  stagingRepo,
		Accounts: identitySvc,
		Rows:     postgres.NewRowStore(base),
		Notifier: notifier,
		Monitor:  monitor,
		Metrics:  appMetrics,
		Logger:   zl,
	}, onboarding.Config{
		RecoveryRedirectURL:  cfg.Onboarding.RecoveryRedirectURL,
		PasswordLength:       cfg.Onboarding.GeneratedPasswordLen,
		NotificationDuration: cfg.Onboarding.NotificationDuration,
		WarningDuration:      cfg.Onboarding.WarningDuration,
		StepTimeout:          cfg.Onboarding.StepTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build onboarding service")
	}

	r := router.NewRouter(
		middleware.NewAuthMiddleware(jwtSvc),
		authHandler.NewHandler(identitySvc),
		doctorHandler.NewHandler(onboardingSvc),
		healthHandler.NewHandler(monitor),
		router.RouterConfig{
			RequestTimeout: cfg.Server.RequestTimeout,
			RateLimit:      rate.Limit(cfg.RateLimit.RequestsPerSecond),
			RateBurst:      cfg.RateLimit.Burst,
			RateEnabled:    cfg.RateLimit.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MetricsPrefix:  cfg.Server.MetricsPrefix,
			Registry:       registry,
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("staging", cfg.Staging.Backend).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}
