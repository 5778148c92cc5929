package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/leafflow/chat-service/internal/chat"
)

type pgReadState struct {
	tx pgx.Tx
}

// UpsertLastRead is a blind upsert on the member key. The schema does not
// prevent moving the pointer backwards.
func (r *pgReadState) UpsertLastRead(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64, lastMessageID uuid.UUID) error {
	_, err := r.tx.Exec(ctx, `
		INSERT INTO read_state (conversation_id, kind, subject_id, last_read_message_id, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT ON CONSTRAINT uq_read_state_member DO UPDATE SET
			last_read_message_id = EXCLUDED.last_read_message_id,
			updated_at           = now()
	`, conversationID, kind, subjectID, lastMessageID)
	return err
}
