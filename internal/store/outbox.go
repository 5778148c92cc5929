package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/leafflow/chat-service/internal/chat"
)

type pgOutbox struct {
	tx pgx.Tx
}

func (r *pgOutbox) Add(ctx context.Context, eventType string, payload map[string]any) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO outbox_messages (event_type, payload, status, attempts, created_at, updated_at)
		VALUES ($1, $2, 'pending', 0, now(), now())
	`, eventType, payload)
	return err
}

// FetchPending claims up to batchSize due rows and flips them to
// processing within the scope. SKIP LOCKED lets dispatcher replicas run
// concurrently without double-claiming.
func (r *pgOutbox) FetchPending(ctx context.Context, batchSize int) ([]chat.OutboxRecord, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT id, event_type, payload, status, attempts, next_retry_at, created_at, updated_at
		FROM outbox_messages
		WHERE status IN ('pending', 'failed')
		  AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []chat.OutboxRecord
	for rows.Next() {
		var rec chat.OutboxRecord
		if err := rows.Scan(
			&rec.ID, &rec.EventType, &rec.Payload, &rec.Status,
			&rec.Attempts, &rec.NextRetryAt, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, err
		}
		batch = append(batch, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(batch) > 0 {
		ids := make([]int64, len(batch))
		for i, rec := range batch {
			ids[i] = rec.ID
		}
		if _, err := r.tx.Exec(ctx, `
			UPDATE outbox_messages SET status = 'processing', updated_at = now()
			WHERE id = ANY($1)
		`, ids); err != nil {
			return nil, err
		}
	}

	return batch, nil
}

func (r *pgOutbox) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.tx.Exec(ctx, `
		UPDATE outbox_messages SET status = 'sent', updated_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *pgOutbox) MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE outbox_messages
		SET status = 'failed', attempts = attempts + 1, next_retry_at = $2, updated_at = now()
		WHERE id = $1
	`, id, nextRetryAt)
	return err
}
