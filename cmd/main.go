package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classifieds/internal/config"
	"classifieds/internal/delivery/handler"
	"classifieds/internal/delivery/router"
	"classifieds/internal/infrastructure/cache"
	"classifieds/internal/infrastructure/metrics"
	"classifieds/internal/infrastructure/payment"
	"classifieds/internal/infrastructure/realtime"
	"classifieds/internal/repository"
	"classifieds/internal/service"
	"classifieds/pkg/database"
	"classifieds/pkg/logger"
	"classifieds/pkg/utils"

	redisClient "github.com/go-redis/redis/v8"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	cfg := config.MustLoadConfig()

	loggers, err := logger.SetupLogger(cfg.Logger.Level)
	if err != nil {
		log.Fatalf("Failed to set up logger: %v", err)
	}
	loggers.InfoLogger.Info("Logger initialized")

	db, cleanupDB := setupDatabase(cfg, loggers)
	defer cleanupDB()

	rdb, cleanupRedis := setupRedis(cfg, loggers)
	defer cleanupRedis()
	redisCache := cache.NewRedisCache(rdb)

	tracerProvider := setupTracer(cfg, loggers)
	defer shutdownTracer(tracerProvider, loggers)

	registry := metrics.NewRegistry(prometheus.NewRegistry())
	loggers.InfoLogger.Info("Prometheus metrics initialized")

	ctx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := realtime.NewHub(rdb, loggers)
	go hub.Subscribe(ctx)

	adRepo := repository.NewMysqlAdRepository(db, redisCache, registry.Repository)
	userRepo := repository.NewMysqlUserRepository(db, registry.Repository)
	chatRepo := repository.NewMysqlChatRepository(db, registry.Repository)
	paymentRepo := repository.NewMysqlPaymentRepository(db, registry.Repository)

	if cfg.Payments.StripeKey == "" {
		loggers.InfoLogger.Warn("payments.stripe_key is empty, checkout requests will fail")
	}
	gateway := payment.NewStripeGateway(cfg.Payments.StripeKey, cfg.Payments.WebhookSecret, nil)
	offer := service.FeatureOffer{
		Amount:     cfg.Payments.FeaturePrice,
		Currency:   cfg.Payments.Currency,
		Days:       cfg.Payments.FeatureDays,
		SuccessURL: cfg.Payments.SuccessURL,
		CancelURL:  cfg.Payments.CancelURL,
	}

	paymentService := service.NewPaymentService(paymentRepo, adRepo, userRepo, gateway, offer, hub, registry.Service)
	services := router.Services{
		Auth:        service.NewAuthService(userRepo, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, registry.Service),
		Ads:         service.NewAdService(adRepo, userRepo, hub, cfg.Moderation.AutoApprove, registry.Service),
		Chats:       service.NewChatService(chatRepo, adRepo, hub, registry.Service),
		Payments:    paymentService,
		Admin:       service.NewAdminService(userRepo, adRepo, paymentRepo, hub, registry.Service),
		Diagnostics: service.NewDiagnosticsService(userRepo, adRepo, paymentService, registry.Service),
	}
	loggers.InfoLogger.Info("Service and repository layers initialized")

	r := router.New(services, router.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Idempotency:    redisCache,
		Realtime:       hub,
		HealthChecks: map[string]handler.Check{
			"mysql": db.PingContext,
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}, loggers, registry.Handler)
	loggers.InfoLogger.Info("Router and routes initialized")

	server := startServer(cfg, r, loggers)

	waitForShutdown(server, loggers)
}

func setupDatabase(cfg *config.Config, loggers *logger.Loggers) (*sql.DB, func()) {
	dsn := database.DSN(
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
	)

	db, err := database.NewDatabase(dsn)
	if err != nil {
		loggers.ErrorLogger.Error("Failed to connect to database", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to database")

	cleanup := func() {
		if err := db.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close database connection", utils.Err(err))
		}
	}

	return db, cleanup
}

func setupRedis(cfg *config.Config, loggers *logger.Loggers) (*redisClient.Client, func()) {
	rdb := redisClient.NewClient(&redisClient.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		loggers.ErrorLogger.Error("Failed to connect to Redis", utils.Err(err))
		os.Exit(1)
	}
	loggers.InfoLogger.Info("Connected to Redis")

	cleanup := func() {
		if err := rdb.Close(); err != nil {
			loggers.ErrorLogger.Error("Failed to close Redis client", utils.Err(err))
		}
	}

	return rdb, cleanup
}

// setupTracer returns nil when tracing is off or the collector is unreachable;
// spans then go to the global no-op provider.
func setupTracer(cfg *config.Config, loggers *logger.Loggers) *sdktrace.TracerProvider {
	if !cfg.Tracing.Enabled {
		loggers.InfoLogger.Info("Tracing disabled")
		return nil
	}

	tracerProvider, err := metrics.InitTracer(metrics.TracerOptions{
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Version:     cfg.Tracing.Version,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		loggers.ErrorLogger.Error("Failed to initialize tracer, continuing without tracing", utils.Err(err))
		return nil
	}
	loggers.InfoLogger.Info("OpenTelemetry Tracer initialized")
	return tracerProvider
}

func shutdownTracer(tp *sdktrace.TracerProvider, loggers *logger.Loggers) {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		loggers.ErrorLogger.Error("Failed to shut down tracer provider", utils.Err(err))
	}
}

func startServer(cfg *config.Config, handler http.Handler, loggers *logger.Loggers) *http.Server {
	// No WriteTimeout: it would cut long-lived websocket connections.
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.Timeout,
		ReadTimeout:       cfg.HTTP.Timeout,
		IdleTimeout:       4 * cfg.HTTP.Timeout,
	}

	go func() {
		loggers.InfoLogger.Info("Starting server", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			loggers.ErrorLogger.Error("Failed to start server", utils.Err(err))
			os.Exit(1)
		}
	}()

	return server
}

func waitForShutdown(server *http.Server, loggers *logger.Loggers) {
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	<-shutdownCh
	loggers.InfoLogger.Info("Shutdown signal received, shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		loggers.ErrorLogger.Error("Server forced to shutdown", utils.Err(err))
	} else {
		loggers.InfoLogger.Info("Server shutdown gracefully")
	}
}
