package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"chaincast/internal/api"
	"chaincast/internal/config"
	"chaincast/internal/drain"
	"chaincast/internal/engine"
	"chaincast/internal/notifier"
	"chaincast/internal/store"
	"chaincast/internal/transport"
	"chaincast/internal/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize PostgreSQL
	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()
	logger.Info("connected to PostgreSQL")

	// Run database migrations
	if err := pgStore.RunMigrations(ctx, os.DirFS("migrations")); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations applied")

	// Initialize Redis
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to Redis")

	// Transport and delivery pipeline
	pubsub := transport.NewRedisTransport(rdb, transport.NewTopicCache(), logger)
	queue := transport.NewRedisQueue(rdb, cfg.QueueName, transport.DefaultVisibilityTimeout, logger)

	hub := ws.NewHub(logger)
	go hub.Run()

	deactivator := engine.NewSubscriptionDeactivator(pgStore, pubsub, logger)
	notify := notifier.New(deactivator, logger)
	delivery := engine.NewDelivery(pgStore, notify, hub, logger)
	publisher := engine.NewPublisher(pubsub, logger)

	// Background drain loop: bounded passes back to back, with a short
	// breather between them.
	drainCtx, stopDrain := context.WithCancel(ctx)
	drainDone := make(chan struct{})
	go func() {
		defer close(drainDone)
		for {
			deadline := time.Now().Add(cfg.DrainBudget)
			d := drain.New(queue, delivery.Handle, func() time.Duration {
				return time.Until(deadline)
			}, logger, drain.Config{})

			stats, err := d.Drain(drainCtx)
			if err != nil {
				logger.Error("drain pass failed", "error", err)
			} else if stats.Processed > 0 {
				logger.Info("drain pass complete",
					"processed", stats.Processed,
					"polls", stats.Polls,
				)
			}

			select {
			case <-drainCtx.Done():
				return
			case <-time.After(cfg.DrainInterval):
			}
		}
	}()

	// Receipt retention sweep
	go func() {
		ticker := time.NewTicker(cfg.PurgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-drainCtx.Done():
				return
			case <-ticker.C:
				purged, err := pgStore.PurgeExpiredReceipts(drainCtx, time.Now().Unix())
				if err != nil {
					logger.Error("receipt purge failed", "error", err)
				} else if purged > 0 {
					logger.Info("purged expired receipts", "count", purged)
				}
			}
		}
	}()

	// Setup router
	router := api.NewRouter(pgStore, pubsub, publisher, deactivator, hub, cfg.QueueName)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	stopDrain()
	<-drainDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
