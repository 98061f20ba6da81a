package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/engine"
	"github.com/marimovDEV/tipografiya/pkg/kafka"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/outbox"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

func main() {
	cfg, err := config.Load(getEnv("PLANNER_CONFIG", ""))
	if err != nil {
		logging.New(logging.DefaultConfig("planning-engine")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	// Setup logger
	logConfig := logging.DefaultConfig(cfg.ServiceName)
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting planning API", "storage", cfg.Storage.Backend, "lock", cfg.Lock.Backend)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracerProvider, err := tracing.Initialize(ctx, &cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
		// Continue without tracing
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "enabled", cfg.Tracing.Enabled, "endpoint", cfg.Tracing.OTLPEndpoint)
	}

	// Initialize Prometheus metrics
	m := metrics.New(metrics.DefaultConfig(cfg.ServiceName))
	logger.Info("Metrics initialized")

	eng, err := engine.New(ctx, cfg, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build planning engine")
		os.Exit(1)
	}
	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to close planning engine")
		}
	}()

	// Relay outbox events to Kafka
	if cfg.Outbox.Enabled {
		producer := kafka.NewProducer(&cfg.Kafka, m, logger)
		defer producer.Close()

		publisher := outbox.NewPublisher(eng.Outbox, producer, logger, m, &outbox.PublisherConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
		})
		if err := publisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer publisher.Stop()
		logger.Info("Outbox publisher started", "brokers", cfg.Kafka.Brokers)
	}

	router := newRouter(eng, m, logger)

	srv := &http.Server{
		Addr:         net.JoinHostPort("", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", srv.Addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
