package bus

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// StreamHandler processes one stream entry. A non-nil error leaves the
// entry unacknowledged so the broker redelivers it.
type StreamHandler func(ctx context.Context, eventType string, fields map[string]string) error

// StreamConsumer reads a Redis stream through a consumer group
// (XREADGROUP). Each instance uses a unique consumer name.
type StreamConsumer struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
	handler  StreamHandler

	batchSize  int64
	blockFor   time.Duration
	retryPause time.Duration
}

func NewStreamConsumer(rdb *redis.Client, stream, group, consumer string, handler StreamHandler) *StreamConsumer {
	return &StreamConsumer{
		rdb:        rdb,
		stream:     stream,
		group:      group,
		consumer:   consumer,
		handler:    handler,
		batchSize:  10,
		blockFor:   5 * time.Second,
		retryPause: 5 * time.Second,
	}
}

// EnsureGroup creates the consumer group, tolerating the "already exists"
// reply so startup is idempotent.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.rdb.XGroupCreateMkStream(ctx, c.stream, c.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	if err == nil {
		log.Info().Str("stream", c.stream).Str("group", c.group).Msg("consumer group created")
	}
	return nil
}

// Run blocks until ctx is done. Entries are acked only after the handler
// returns nil; consumer-level errors pause the loop briefly and continue.
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}
	log.Info().
		Str("stream", c.stream).
		Str("group", c.group).
		Str("consumer", c.consumer).
		Msg("stream consumer started")

	for {
		if ctx.Err() != nil {
			log.Info().Str("stream", c.stream).Msg("stream consumer stopped")
			return ctx.Err()
		}

		res, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    c.batchSize,
			Block:    c.blockFor,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("stream", c.stream).Msg("stream read failed, retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryPause):
			}
			continue
		}

		for _, stream := range res {
			for _, entry := range stream.Messages {
				c.process(ctx, entry)
			}
		}
	}
}

func (c *StreamConsumer) process(ctx context.Context, entry redis.XMessage) {
	fields := make(map[string]string, len(entry.Values))
	for k, v := range entry.Values {
		if s, ok := v.(string); ok {
			fields[k] = s
		}
	}
	eventType := fields["event_type"]
	if eventType == "" {
		eventType = "unknown"
	}

	if err := c.handler(ctx, eventType, fields); err != nil {
		// No ack: the broker redelivers on the next claim.
		log.Error().Err(err).
			Str("entry", entry.ID).
			Str("event", eventType).
			Msg("stream entry handler failed")
		return
	}

	if err := c.rdb.XAck(ctx, c.stream, c.group, entry.ID).Err(); err != nil {
		log.Error().Err(err).Str("entry", entry.ID).Msg("stream ack failed")
	}
}
