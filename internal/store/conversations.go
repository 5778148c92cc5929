package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/cursor"
)

type pgConversations struct {
	tx pgx.Tx
}

const conversationCols = `id, topic_type, topic_id, status, assignee_admin_id, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(
		&c.ID, &c.TopicType, &c.TopicID, &c.Status,
		&c.AssigneeAdminID, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return chat.Conversation{}, fmt.Errorf("conversation: %w", chat.ErrNotFound)
	}
	return c, err
}

func (r *pgConversations) GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+conversationCols+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *pgConversations) GetSupportForUser(ctx context.Context, userID int64) (chat.Conversation, error) {
	row := r.tx.QueryRow(ctx, `
		SELECT c.id, c.topic_type, c.topic_id, c.status, c.assignee_admin_id,
		       c.last_message_at, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.kind = 'user' AND p.subject_id = $1
		  AND c.topic_type = 'support' AND c.status = 'open'
		ORDER BY c.created_at DESC
		LIMIT 1
	`, userID)
	return scanConversation(row)
}

func (r *pgConversations) GetByTopic(ctx context.Context, topicType string, topicID int64, status chat.ConversationStatus) (chat.Conversation, error) {
	q := `
		SELECT ` + conversationCols + `
		FROM conversations
		WHERE topic_type = $1 AND topic_id = $2`
	args := []any{topicType, topicID}
	if status != "" {
		q += ` AND status = $3`
		args = append(args, status)
	}
	q += ` ORDER BY created_at DESC LIMIT 1`
	return scanConversation(r.tx.QueryRow(ctx, q, args...))
}

func (r *pgConversations) ListForUser(ctx context.Context, userID int64, cur string, limit int) ([]chat.Conversation, error) {
	q := `
		SELECT c.id, c.topic_type, c.topic_id, c.status, c.assignee_admin_id,
		       c.last_message_at, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.kind = 'user' AND p.subject_id = $1`
	args := []any{userID}

	if dec, ok := cursor.Decode(cur); ok {
		q += ` AND (c.last_message_at < $2 OR (c.last_message_at = $2 AND c.id > $3))`
		args = append(args, dec.TS, dec.ID)
	}

	q += fmt.Sprintf(` ORDER BY c.last_message_at DESC NULLS LAST, c.id LIMIT %d`, limit)

	rows, err := r.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func (r *pgConversations) ListForAdmin(ctx context.Context, f ConversationFilter) ([]chat.Conversation, error) {
	q := `SELECT ` + conversationCols + ` FROM conversations WHERE TRUE`
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Status != nil {
		q += ` AND status = ` + arg(*f.Status)
	}
	if f.AssigneeAdminID != nil {
		q += ` AND assignee_admin_id = ` + arg(*f.AssigneeAdminID)
	}
	if dec, ok := cursor.Decode(f.Cursor); ok {
		ts := arg(dec.TS)
		q += fmt.Sprintf(` AND (last_message_at < %s OR (last_message_at = %s AND id > %s))`,
			ts, ts, arg(dec.ID))
	}
	q += fmt.Sprintf(` ORDER BY last_message_at DESC NULLS LAST, id LIMIT %d`, f.Limit)

	rows, err := r.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectConversations(rows)
}

func collectConversations(rows pgx.Rows) ([]chat.Conversation, error) {
	out := make([]chat.Conversation, 0)
	for rows.Next() {
		var c chat.Conversation
		if err := rows.Scan(
			&c.ID, &c.TopicType, &c.TopicID, &c.Status,
			&c.AssigneeAdminID, &c.LastMessageAt, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *pgConversations) Create(ctx context.Context, c chat.Conversation) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO conversations (id, topic_type, topic_id, status, assignee_admin_id, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.TopicType, c.TopicID, c.Status, c.AssigneeAdminID, c.LastMessageAt, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r *pgConversations) Assign(ctx context.Context, id uuid.UUID, adminID int64) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE conversations SET assignee_admin_id = $2, updated_at = now() WHERE id = $1
	`, id, adminID)
	return err
}

func (r *pgConversations) Close(ctx context.Context, id uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE conversations SET status = 'closed', updated_at = now() WHERE id = $1
	`, id)
	return err
}

func (r *pgConversations) TouchLastMessageAt(ctx context.Context, id uuid.UUID, ts time.Time) error {
	_, err := r.tx.Exec(ctx, `
		UPDATE conversations SET last_message_at = $2, updated_at = now() WHERE id = $1
	`, id, ts)
	return err
}
