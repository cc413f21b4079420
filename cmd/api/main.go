package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shifa-clinics/booking-gateway/internal/api/router"
	"github.com/shifa-clinics/booking-gateway/internal/booking"
	"github.com/shifa-clinics/booking-gateway/internal/cart"
	appconfig "github.com/shifa-clinics/booking-gateway/internal/config"
	"github.com/shifa-clinics/booking-gateway/internal/events"
	"github.com/shifa-clinics/booking-gateway/internal/http/handlers"
	"github.com/shifa-clinics/booking-gateway/internal/observability/metrics"
	"github.com/shifa-clinics/booking-gateway/internal/session"
	"github.com/shifa-clinics/booking-gateway/internal/upstream"
	"github.com/shifa-clinics/booking-gateway/pkg/logging"
)

func main() {
	// Load .env in development; in production config comes from the environment.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-gateway API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"upstream", cfg.UpstreamBaseURL,
	)

	redisOpts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	upstreamMetrics := metrics.NewUpstreamMetrics(reg)
	flowMetrics := metrics.NewFlowMetrics(reg)

	api := upstream.New(cfg.UpstreamBaseURL, logger,
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithMetrics(upstreamMetrics),
	)

	bus := events.NewBus()
	sessions := session.NewStore(rdb, cfg.SessionTTL, bus, logger)
	localCart := cart.NewLocalStore(rdb, cfg.CartTTL, bus, logger)
	carts := cart.NewReconciler(api, localCart, flowMetrics, logger)
	flows := booking.NewRegistry(api, flowMetrics, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		AuthHandler:        handlers.NewAuthHandler(api, sessions, carts, logger),
		CatalogHandler:     handlers.NewCatalogHandler(api, logger),
		CartHandler:        handlers.NewCartHandler(carts, sessions, logger),
		BookingHandler:     handlers.NewBookingHandler(flows, sessions, logger),
		WSHandler:          handlers.NewWSHandler(bus, router.CheckOrigin(cfg.CORSAllowedOrigins), logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if err := rdb.Close(); err != nil {
		logger.Warn("redis close failed", "error", err)
	}

	logger.Info("server stopped")
}
