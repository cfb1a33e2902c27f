package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"quotagate/internal/auth"
	"quotagate/internal/billing"
	"quotagate/internal/platform/config"
	"quotagate/internal/platform/httpserver"
	"quotagate/internal/platform/logger"
	platformredis "quotagate/internal/platform/redis"
	rlconfig "quotagate/internal/ratelimit/config"
	"quotagate/internal/ratelimit/metrics"
	ratelimitmw "quotagate/internal/ratelimit/middleware"
	"quotagate/internal/ratelimit/observability"
	"quotagate/internal/ratelimit/ports"
	"quotagate/internal/ratelimit/service/checker"
	"quotagate/internal/ratelimit/store/counter"
	httptransport "quotagate/internal/transport/http"
)

// main wires dependencies explicitly: no package-level singletons, so tests
// can build the same graph with fakes. Business logic lives in internal
// services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	var store ports.CounterStore
	var counterBackend httptransport.Pinger
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable, rate limiting will run in bypass mode", "error", err)
	}
	if redisClient != nil {
		store = counter.NewRedis(redisClient, "ratelimit")
		counterBackend = redisClient
		defer redisClient.Close()
	}

	opts := []checker.Option{
		checker.WithLogger(log),
		checker.WithMetrics(metrics.New()),
	}

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("billing database unavailable, subscriptions resolve as unsubscribed", "error", err)
		} else {
			defer pool.Close()
			opts = append(opts, checker.WithSubscriptions(billing.NewPostgres(pool)))
		}
	}

	var audit *observability.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		audit, err = observability.NewKafkaPublisher(cfg.KafkaBrokers, "")
		if err != nil {
			log.Error("kafka unavailable, violation events will only be logged", "error", err)
		} else {
			opts = append(opts, checker.WithAuditPublisher(audit))
		}
	}

	engine, err := checker.New(
		rlconfig.NewRegistry(),
		auth.NewTokenSessions(cfg.JWTSigningKey),
		store,
		opts...,
	)
	if err != nil {
		log.Error("failed to build rate limit engine", "error", err)
		os.Exit(1)
	}

	limiter := ratelimitmw.New(engine, log,
		ratelimitmw.WithDisabled(cfg.RateLimitDisabled),
		ratelimitmw.WithSecureCookies(cfg.IsProduction()),
	)

	router := httptransport.NewRouter(httptransport.NewHandler(counterBackend), limiter)
	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting quotagate", "addr", cfg.Addr, "env", cfg.Environment)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if audit != nil {
		if err := audit.Close(shutdownCtx); err != nil {
			log.Warn("failed to flush audit events", "error", err)
		}
	}
}
