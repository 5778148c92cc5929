package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Publisher is the outbound side of the fan-out channel. The payload map
// must carry event_type; unknown keys are forwarded verbatim.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload map[string]any) error
}

// RedisPublisher publishes envelopes on a Redis Pub/Sub channel.
type RedisPublisher struct {
	rdb *redis.Client
}

func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload map[string]any) error {
	eventType, _ := payload["event_type"].(string)
	if eventType == "" {
		eventType = "unknown"
	}
	raw, err := MarshalEnvelope(eventType, payload)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, channel, raw).Err()
}

// EventHandler receives every decoded envelope from the subscription.
type EventHandler func(eventType string, data map[string]any)

// RedisSubscriber is the per-process listener on the fan-out channel. It
// starts at process startup and runs until the context is cancelled.
// Transport loss is tolerated: the outbox retries, and clients catch up
// over ListMessages rather than through Pub/Sub history.
type RedisSubscriber struct {
	rdb     *redis.Client
	channel string
	handler EventHandler
}

func NewRedisSubscriber(rdb *redis.Client, channel string, handler EventHandler) *RedisSubscriber {
	return &RedisSubscriber{rdb: rdb, channel: channel, handler: handler}
}

// Run blocks until ctx is done, dispatching every incoming envelope to the
// handler. Malformed messages are logged and dropped.
func (s *RedisSubscriber) Run(ctx context.Context) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	log.Info().Str("channel", s.channel).Msg("pubsub subscriber started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("channel", s.channel).Msg("pubsub subscriber stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				log.Warn().Str("channel", s.channel).Msg("pubsub channel closed")
				return
			}
			eventType, data, err := UnmarshalEnvelope([]byte(msg.Payload))
			if err != nil {
				log.Warn().Err(err).Msg("dropping malformed pubsub message")
				continue
			}
			s.handler(eventType, data)
		}
	}
}
