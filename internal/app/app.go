package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qaddoumi/tahweel/internal/api"
	"github.com/qaddoumi/tahweel/internal/api/middleware"
	"github.com/qaddoumi/tahweel/internal/config"
	"github.com/qaddoumi/tahweel/internal/db"
	"github.com/qaddoumi/tahweel/internal/events"
	"github.com/qaddoumi/tahweel/internal/idempotency"
	"github.com/qaddoumi/tahweel/internal/observability"
	"github.com/qaddoumi/tahweel/internal/proofstore"
	"github.com/qaddoumi/tahweel/internal/repository"
	"github.com/qaddoumi/tahweel/internal/service"
	"github.com/qaddoumi/tahweel/internal/worker"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	proofs, err := proofstore.NewFileStore(cfg.ProofDir)
	if err != nil {
		return fmt.Errorf("init proof store: %w", err)
	}

	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	defer publisher.Close()

	store := repository.NewStore(pool)
	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	auth := middleware.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	reconciliationWorker := worker.NewReconciliationWorker(service.NewReconciliationService(store)).
		WithInterval(cfg.ReconciliationInterval)
	urgencyWorker := worker.NewUrgencyWorker(store).
		WithInterval(cfg.UrgencyInterval)

	stopReconciliation := reconciliationWorker.Run(ctx)
	stopUrgency := urgencyWorker.Run(ctx)
	logger.Info("workers started",
		zap.Duration("reconciliation_interval", cfg.ReconciliationInterval),
		zap.Duration("urgency_interval", cfg.UrgencyInterval),
	)

	router := api.NewRouter(api.RouterConfig{
		DB:          pool,
		Redis:       redisClient,
		Store:       store,
		Auth:        auth,
		Idempotency: idemStore,
		Proofs:      proofs,
		Publisher:   publisher,
		Logger:      logger,
		PublicRPS:   cfg.PublicRateLimitRPS,
		AuthRPS:     cfg.AuthRateLimitRPS,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopReconciliation()
	stopUrgency()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
