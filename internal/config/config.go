// Package config loads service configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config collects every knob the three binaries read.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	JWTHS256Secret string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	WSHeartbeat time.Duration

	PubSubChannel    string
	LeafEventsStream string
	LeafEventsGroup  string
}

// Load reads the environment, applying defaults. Validation of required
// values (DATABASE_URL) happens at the call site so each binary can fail
// with its own message.
func Load() Config {
	return Config{
		Env:      env("ENV", "dev"),
		HTTPAddr: env("HTTP_ADDR", ":8080"),

		DatabaseURL: env("DATABASE_URL", ""),
		RedisURL:    env("REDIS_URL", "redis://localhost:6379/0"),

		JWTHS256Secret: env("JWT_HS256_SECRET", "dev-secret-change-in-production"),

		OutboxPollInterval: envSeconds("OUTBOX_POLL_INTERVAL", 1),
		OutboxBatchSize:    envInt("OUTBOX_BATCH_SIZE", 50),
		OutboxMaxAttempts:  envInt("OUTBOX_MAX_ATTEMPTS", 5),

		WSHeartbeat: envSeconds("WS_HEARTBEAT_SECONDS", 30),

		PubSubChannel:    env("REDIS_PUBSUB_CHANNEL", "chat.fanout"),
		LeafEventsStream: env("LEAF_EVENTS_STREAM", "leaf.events"),
		LeafEventsGroup:  env("LEAF_EVENTS_GROUP", "chat-service"),
	}
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envSeconds(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
