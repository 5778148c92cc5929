// Package outbox publishes journaled events to the fan-out bus with
// at-least-once semantics: a dispatcher crash between publish and
// mark-sent re-publishes on the next claim.
package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/bus"
	"github.com/leafflow/chat-service/internal/store"
)

const (
	baseDelay = 5 * time.Second
	maxDelay  = 300 * time.Second
)

// Backoff returns the delay before the next retry after the given number
// of failed attempts: min(5s * 2^attempts, 300s).
func Backoff(attempts int) time.Duration {
	d := baseDelay
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= maxDelay {
			return maxDelay
		}
	}
	return d
}

// Dispatcher polls the outbox journal and publishes pending records.
// Replicas may run concurrently: FetchPending skips rows another replica
// has locked.
type Dispatcher struct {
	store       store.Store
	publisher   bus.Publisher
	channel     string
	interval    time.Duration
	batchSize   int
	maxAttempts int
	now         func() time.Time
}

// Config carries the dispatcher knobs.
type Config struct {
	Channel     string
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func New(st store.Store, pub bus.Publisher, cfg Config) *Dispatcher {
	return &Dispatcher{
		store:       st,
		publisher:   pub,
		channel:     cfg.Channel,
		interval:    cfg.Interval,
		batchSize:   cfg.BatchSize,
		maxAttempts: cfg.MaxAttempts,
		now:         time.Now,
	}
}

// WithClock overrides the retry clock, for tests.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Run loops until ctx is cancelled, finishing the in-flight batch first.
func (d *Dispatcher) Run(ctx context.Context) {
	log.Info().
		Dur("poll_interval", d.interval).
		Int("batch_size", d.batchSize).
		Int("max_attempts", d.maxAttempts).
		Msg("outbox dispatcher started")

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox dispatcher stopped")
			return
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil {
				log.Error().Err(err).Msg("outbox batch failed")
			}
		}
	}
}

// ProcessBatch claims one batch, publishes each record, and commits the
// resulting status changes in the same scope as the claim.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	sc, err := d.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer sc.Rollback(ctx)

	batch, err := sc.Outbox().FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return sc.Commit(ctx)
	}

	var sentIDs []int64
	for _, rec := range batch {
		if rec.Attempts >= d.maxAttempts {
			// Poisoned: stays in processing for human triage.
			log.Warn().
				Int64("outbox_id", rec.ID).
				Str("event", rec.EventType).
				Int("attempts", rec.Attempts).
				Msg("outbox record exceeded max attempts, skipping")
			continue
		}

		payload := map[string]any{"event_type": rec.EventType}
		for k, v := range rec.Payload {
			payload[k] = v
		}

		if err := d.publisher.Publish(ctx, d.channel, payload); err != nil {
			log.Error().Err(err).
				Int64("outbox_id", rec.ID).
				Str("event", rec.EventType).
				Msg("outbox publish failed, scheduling retry")
			if err := sc.Outbox().MarkFailed(ctx, rec.ID, d.now().UTC().Add(Backoff(rec.Attempts))); err != nil {
				return err
			}
			continue
		}
		sentIDs = append(sentIDs, rec.ID)
	}

	if err := sc.Outbox().MarkSent(ctx, sentIDs); err != nil {
		return err
	}
	if err := sc.Commit(ctx); err != nil {
		return err
	}
	if len(sentIDs) > 0 {
		log.Debug().Int("published", len(sentIDs)).Msg("outbox batch published")
	}
	return nil
}
