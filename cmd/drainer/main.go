// The drainer runs one bounded drain pass against the delivery queue
// and exits. It is meant for cron-style invocation alongside, or
// instead of, the server's built-in drain loop.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"chaincast/internal/config"
	"chaincast/internal/drain"
	"chaincast/internal/engine"
	"chaincast/internal/notifier"
	"chaincast/internal/store"
	"chaincast/internal/transport"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pgStore.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid redis url", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	pubsub := transport.NewRedisTransport(rdb, transport.NewTopicCache(), logger)
	queue := transport.NewRedisQueue(rdb, cfg.QueueName, transport.DefaultVisibilityTimeout, logger)

	deactivator := engine.NewSubscriptionDeactivator(pgStore, pubsub, logger)
	notify := notifier.New(deactivator, logger)
	delivery := engine.NewDelivery(pgStore, notify, nil, logger)

	deadline := time.Now().Add(cfg.DrainBudget)
	d := drain.New(queue, delivery.Handle, func() time.Duration {
		return time.Until(deadline)
	}, logger, drain.Config{})

	stats, err := d.Drain(ctx)
	if err != nil {
		logger.Error("drain failed", "error", err)
		os.Exit(1)
	}

	logger.Info("drain complete",
		"processed", stats.Processed,
		"polls", stats.Polls,
	)
}
