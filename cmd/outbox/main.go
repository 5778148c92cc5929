// The outbox dispatcher: polls the journal and publishes committed events
// to the fanout channel. Safe to run as multiple replicas.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/bus"
	"github.com/leafflow/chat-service/internal/config"
	"github.com/leafflow/chat-service/internal/outbox"
	"github.com/leafflow/chat-service/internal/store"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "chat-outbox").Logger()
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}
	pool, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid REDIS_URL")
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	dispatcher := outbox.New(store.NewPG(pool), bus.NewRedisPublisher(rdb), outbox.Config{
		Channel:     cfg.PubSubChannel,
		Interval:    cfg.OutboxPollInterval,
		BatchSize:   cfg.OutboxBatchSize,
		MaxAttempts: cfg.OutboxMaxAttempts,
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	dispatcher.Run(ctx)
}
