// The leaf.events consumer: turns external order/user events into chat
// write-path calls through a Redis Streams consumer group.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/bus"
	"github.com/leafflow/chat-service/internal/config"
	"github.com/leafflow/chat-service/internal/ingress"
	"github.com/leafflow/chat-service/internal/service"
	"github.com/leafflow/chat-service/internal/store"
)

func main() {
	cfg := config.Load()

	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "chat-leafconsumer").Logger()
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

	handler := ingress.NewHandler(service.New(store.NewPG(pool)))

	// Unique consumer name per instance within the group.
	consumerName := fmt.Sprintf("consumer-%s", uuid.NewString()[:8])
	consumer := bus.NewStreamConsumer(rdb, cfg.LeafEventsStream, cfg.LeafEventsGroup, consumerName, handler.HandleEvent)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		log.Info().Msg("shutting down...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("stream consumer failed")
	}
}
