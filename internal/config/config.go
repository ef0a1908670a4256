package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	// QueueName is the delivery queue endpoint subscriptions bind to.
	QueueName string

	// DrainBudget caps the wall-clock time of one drain pass.
	DrainBudget time.Duration

	// DrainInterval is the pause between drain passes in the server's
	// background loop.
	DrainInterval time.Duration

	// PurgeInterval is how often expired receipts are swept.
	PurgeInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	port := getEnv("PORT", "8080")
	dbURL := getEnv("DATABASE_URL", "")
	redisURL := getEnv("REDIS_URL", "")
	queueName := getEnv("QUEUE_NAME", "webhook-deliveries")
	drainBudget := getEnvDuration("DRAIN_BUDGET", 60*time.Second)
	drainInterval := getEnvDuration("DRAIN_INTERVAL", time.Second)
	purgeInterval := getEnvDuration("PURGE_INTERVAL", time.Hour)

	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	return &Config{
		Port:          port,
		DatabaseURL:   dbURL,
		RedisURL:      redisURL,
		QueueName:     queueName,
		DrainBudget:   drainBudget,
		DrainInterval: drainInterval,
		PurgeInterval: purgeInterval,
	}, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		if n, err := strconv.Atoi(val); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
