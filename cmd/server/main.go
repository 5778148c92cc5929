// The chat API server: REST + WebSocket surface plus the per-process bus
// subscriber that feeds live sessions.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/auth"
	"github.com/leafflow/chat-service/internal/bus"
	"github.com/leafflow/chat-service/internal/config"
	"github.com/leafflow/chat-service/internal/httpapi"
	"github.com/leafflow/chat-service/internal/service"
	"github.com/leafflow/chat-service/internal/store"
	"github.com/leafflow/chat-service/internal/ws"
)

func main() {
	cfg := config.Load()

	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "chat-api").Logger()

	// Pretty logging for local dev
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

	chatSvc := service.New(store.NewPG(pool))
	verifier := auth.NewHS256Verifier(cfg.JWTHS256Secret)

	registry := ws.NewRegistry()
	wsHandler := ws.NewHandler(chatSvc, registry, verifier, cfg.WSHeartbeat)

	// Bus-to-session bridge: every committed event published on the fanout
	// channel reaches this instance's live sockets.
	bridge := ws.NewBridge(registry)
	subscriber := bus.NewRedisSubscriber(rdb, cfg.PubSubChannel, bridge.HandleEvent)
	go subscriber.Run(ctx)

	srv := &httpapi.Server{Chat: chatSvc, Verifier: verifier, WS: wsHandler}
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("server stopped")
}
