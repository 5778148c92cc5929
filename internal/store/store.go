// Package store defines the transactional storage ports for the chat core
// and their PostgreSQL implementation.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
)

// Store opens transactional scopes. One scope spans one logical operation;
// everything written through it becomes visible on Commit.
type Store interface {
	Begin(ctx context.Context) (Scope, error)
}

// Scope is a single transaction exposing the per-entity repositories and
// the outbox writer. Rollback after Commit is a no-op.
type Scope interface {
	Conversations() ConversationRepo
	Participants() ParticipantRepo
	Messages() MessageRepo
	ReadState() ReadStateRepo
	Outbox() OutboxRepo

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// ConversationFilter narrows the admin conversation listing.
type ConversationFilter struct {
	Status          *chat.ConversationStatus
	AssigneeAdminID *int64
	Cursor          string
	Limit           int
}

// ConversationRepo reads and writes conversation rows.
// Getters return an error wrapping chat.ErrNotFound when no row matches.
type ConversationRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error)
	GetSupportForUser(ctx context.Context, userID int64) (chat.Conversation, error)
	// GetByTopic returns the newest conversation for (topicType, topicID),
	// optionally restricted to a status ("" matches any).
	GetByTopic(ctx context.Context, topicType string, topicID int64, status chat.ConversationStatus) (chat.Conversation, error)
	ListForUser(ctx context.Context, userID int64, cursor string, limit int) ([]chat.Conversation, error)
	ListForAdmin(ctx context.Context, f ConversationFilter) ([]chat.Conversation, error)

	Create(ctx context.Context, c chat.Conversation) error
	Assign(ctx context.Context, id uuid.UUID, adminID int64) error
	Close(ctx context.Context, id uuid.UUID) error
	TouchLastMessageAt(ctx context.Context, id uuid.UUID, ts time.Time) error
}

// ParticipantRepo manages conversation membership. Add fails with
// chat.ErrConflict on a duplicate (conversation, kind, subject) triple.
type ParticipantRepo interface {
	IsParticipant(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64) (bool, error)
	ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error)
	Add(ctx context.Context, p chat.Participant) error
}

// MessageRepo reads and writes messages. CreateIfNotExists is race-safe:
// two concurrent scopes inserting the same idempotency tuple both end up
// observing the same row, with created=false for the loser.
type MessageRepo interface {
	ListMessages(ctx context.Context, conversationID uuid.UUID, cursor string, limit int) ([]chat.Message, error)
	CreateIfNotExists(ctx context.Context, m chat.Message) (chat.Message, bool, error)
	GetByClientMsgID(ctx context.Context, conversationID uuid.UUID, senderKind chat.ParticipantKind, senderID int64, clientMsgID uuid.UUID) (chat.Message, error)
}

// ReadStateRepo upserts per-member read positions. The upsert is blind:
// monotonicity is policy, not schema.
type ReadStateRepo interface {
	UpsertLastRead(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64, lastMessageID uuid.UUID) error
}

// OutboxRepo journals events in the same transaction as the state change
// that caused them. FetchPending claims rows with skip-locked semantics so
// dispatcher replicas never double-claim.
type OutboxRepo interface {
	Add(ctx context.Context, eventType string, payload map[string]any) error
	FetchPending(ctx context.Context, batchSize int) ([]chat.OutboxRecord, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time) error
}
