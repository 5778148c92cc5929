package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/cursor"
)

type pgMessages struct {
	tx pgx.Tx
}

const messageCols = `id, conversation_id, sender_kind, sender_id, type, body, payload, client_msg_id, created_at`

func scanMessage(row pgx.Row) (chat.Message, error) {
	var m chat.Message
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderKind, &m.SenderID,
		&m.Type, &m.Body, &m.Payload, &m.ClientMsgID, &m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Message{}, fmt.Errorf("message: %w", chat.ErrNotFound)
	}
	return m, err
}

func (r *pgMessages) ListMessages(ctx context.Context, conversationID uuid.UUID, cur string, limit int) ([]chat.Message, error) {
	q := `SELECT ` + messageCols + ` FROM messages WHERE conversation_id = $1`
	args := []any{conversationID}

	// Strictly-greater (created_at, id) keeps pages disjoint and contiguous.
	if dec, ok := cursor.Decode(cur); ok {
		q += ` AND (created_at, id) > ($2, $3::uuid)`
		args = append(args, dec.TS, dec.ID)
	}
	q += fmt.Sprintf(` ORDER BY created_at ASC, id ASC LIMIT %d`, limit)

	rows, err := r.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Message, 0, limit)
	for rows.Next() {
		var m chat.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderKind, &m.SenderID,
			&m.Type, &m.Body, &m.Payload, &m.ClientMsgID, &m.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CreateIfNotExists inserts the message with ON CONFLICT DO NOTHING on the
// idempotency constraint. Read-then-write would race; the constraint is the
// arbiter. On conflict the existing row is fetched and returned.
func (r *pgMessages) CreateIfNotExists(ctx context.Context, m chat.Message) (chat.Message, bool, error) {
	row := r.tx.QueryRow(ctx, `
		INSERT INTO messages (id, conversation_id, sender_kind, sender_id, type, body, payload, client_msg_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT ON CONSTRAINT uq_message_idempotency DO NOTHING
		RETURNING `+messageCols,
		m.ID, m.ConversationID, m.SenderKind, m.SenderID, m.Type, m.Body, m.Payload, m.ClientMsgID, m.CreatedAt)

	inserted, err := scanMessage(row)
	if err == nil {
		return inserted, true, nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return chat.Message{}, false, err
	}

	existing, err := r.GetByClientMsgID(ctx, m.ConversationID, m.SenderKind, m.SenderID, m.ClientMsgID)
	if err != nil {
		return chat.Message{}, false, err
	}
	return existing, false, nil
}

func (r *pgMessages) GetByClientMsgID(ctx context.Context, conversationID uuid.UUID, senderKind chat.ParticipantKind, senderID int64, clientMsgID uuid.UUID) (chat.Message, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT `+messageCols+` FROM messages
		WHERE conversation_id = $1 AND sender_kind = $2 AND sender_id = $3 AND client_msg_id = $4
	`, conversationID, senderKind, senderID, clientMsgID)
	return scanMessage(row)
}
