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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/hospital-admin/internal/config"
	"github.com/jwalitptl/hospital-admin/internal/email"
	"github.com/jwalitptl/hospital-admin/internal/worker"
	"github.com/jwalitptl/hospital-admin/pkg/logger"
	"github.com/jwalitptl/hospital-admin/pkg/messaging/redis"
	"github.com/jwalitptl/hospital-admin/pkg/metrics"
)

func setupHealthCheck(port int, registry *prometheus.Registry, lg *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error(err, "Health check server failed")
			os.Exit(1)
		}
	}()
	return srv
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		JSON:       true,
	})
	log.Logger = lg.ZL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := redis.NewClient(ctx, redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		lg.Fatal(err, "Failed to connect to Redis")
	}
	broker := redis.NewRedisBroker(client, &lg.ZL)
	defer broker.Close()

	registry := prometheus.NewRegistry()
	mailer, err := worker.NewFallbackMailer(
		broker,
		email.NewSMTPService(cfg.SMTP, &lg.ZL),
		worker.FallbackMailerConfig{Mailbox: cfg.Worker.OperatorMailbox},
		lg.WithFields(map[string]interface{}{"component": "fallback_mailer"}),
		metrics.NewMetrics(cfg.Server.MetricsPrefix, registry),
	)
	if err != nil {
		lg.Fatal(err, "Failed to create fallback mailer")
	}

	health := setupHealthCheck(cfg.Worker.HealthPort, registry, lg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		lg.Info("Shutting down...")
		cancel()
	}()

	if err := mailer.Start(ctx); err != nil {
		lg.Error(err, "Fallback mailer stopped")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = health.Shutdown(shutdownCtx)
}
