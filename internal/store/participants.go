package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leafflow/chat-service/internal/chat"
)

type pgParticipants struct {
	tx pgx.Tx
}

func (r *pgParticipants) IsParticipant(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM participants
			WHERE conversation_id = $1 AND kind = $2 AND subject_id = $3
		)
	`, conversationID, kind, subjectID).Scan(&exists)
	return exists, err
}

func (r *pgParticipants) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error) {
	rows, err := r.tx.Query(ctx, `
		SELECT conversation_id, kind, subject_id, joined_at
		FROM participants
		WHERE conversation_id = $1
		ORDER BY joined_at, subject_id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]chat.Participant, 0)
	for rows.Next() {
		var p chat.Participant
		if err := rows.Scan(&p.ConversationID, &p.Kind, &p.SubjectID, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *pgParticipants) Add(ctx context.Context, p chat.Participant) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO participants (conversation_id, kind, subject_id, joined_at)
		VALUES ($1, $2, $3, $4)
	`, p.ConversationID, p.Kind, p.SubjectID, p.JoinedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return fmt.Errorf("participant %s:%d already in conversation: %w", p.Kind, p.SubjectID, chat.ErrConflict)
	}
	return err
}
