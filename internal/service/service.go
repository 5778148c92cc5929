// Package service implements the transactional write path of the chat core.
// Every operation runs inside a single storage scope: the state change and
// the outbox record commit together or not at all.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/store"
)

// Outbox event types emitted by the write path.
const (
	EventMessageCreated      = "chat.message_created"
	EventConversationCreated = "chat.conversation_created"
	EventConversationUpdated = "chat.conversation_updated"
)

// Chat wraps the storage adapter with the write-path operations.
type Chat struct {
	store store.Store
	now   func() time.Time
}

// New creates the service over a store.
func New(st store.Store) *Chat {
	return &Chat{store: st, now: time.Now}
}

// WithClock overrides the writer clock. Tests use this to pin created_at.
func (s *Chat) WithClock(now func() time.Time) *Chat {
	s.now = now
	return s
}

// authorize loads nothing itself: the caller passes the conversation it
// already fetched within the scope. Admins have global access; everyone
// else needs a matching participant row.
func authorize(ctx context.Context, sc store.Scope, conv chat.Conversation, p chat.Principal) error {
	if p.IsAdmin() {
		return nil
	}
	member, err := sc.Participants().IsParticipant(ctx, conv.ID, p.Kind, p.SubjectID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%s is not a participant of conversation %s: %w", p.Key(), conv.ID, chat.ErrForbidden)
	}
	return nil
}

// SendMessage persists a message exactly once per (sender, client_msg_id)
// pair. When the idempotency key already exists the stored message is
// returned with created=false and nothing is committed.
func (s *Chat) SendMessage(
	ctx context.Context,
	conversationID uuid.UUID,
	principal chat.Principal,
	clientMsgID uuid.UUID,
	msgType chat.MessageType,
	body *string,
) (chat.Message, bool, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Message{}, false, err
	}
	defer sc.Rollback(ctx)

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return chat.Message{}, false, err
	}
	if err := authorize(ctx, sc, conv, principal); err != nil {
		return chat.Message{}, false, err
	}

	// created_at comes from the writer clock before insert so the row and
	// the outbox payload agree.
	msg := chat.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderKind:     principal.Kind,
		SenderID:       principal.SubjectID,
		Type:           msgType,
		Body:           body,
		ClientMsgID:    clientMsgID,
		CreatedAt:      s.now().UTC(),
	}

	msg, created, err := sc.Messages().CreateIfNotExists(ctx, msg)
	if err != nil {
		return chat.Message{}, false, err
	}
	if !created {
		return msg, false, nil
	}

	if err := sc.Conversations().TouchLastMessageAt(ctx, conversationID, msg.CreatedAt); err != nil {
		return chat.Message{}, false, err
	}
	if err := sc.Outbox().Add(ctx, EventMessageCreated, messageCreatedPayload(msg)); err != nil {
		return chat.Message{}, false, err
	}
	if err := sc.Commit(ctx); err != nil {
		return chat.Message{}, false, err
	}
	return msg, true, nil
}

func messageCreatedPayload(m chat.Message) map[string]any {
	var body any
	if m.Body != nil {
		body = *m.Body
	}
	return map[string]any{
		"message_id":      m.ID.String(),
		"conversation_id": m.ConversationID.String(),
		"sender_kind":     string(m.SenderKind),
		"sender_id":       m.SenderID,
		"type":            string(m.Type),
		"body":            body,
	}
}

// ListMessages returns a page of messages in (created_at, id) order after
// authorising the principal against the conversation.
func (s *Chat) ListMessages(
	ctx context.Context,
	conversationID uuid.UUID,
	principal chat.Principal,
	cursor string,
	limit int,
) ([]chat.Message, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Rollback(ctx)

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := authorize(ctx, sc, conv, principal); err != nil {
		return nil, err
	}
	return sc.Messages().ListMessages(ctx, conversationID, cursor, limit)
}

// GetConversation loads a conversation the principal may see.
func (s *Chat) GetConversation(ctx context.Context, conversationID uuid.UUID, principal chat.Principal) (chat.Conversation, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer sc.Rollback(ctx)

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if err := authorize(ctx, sc, conv, principal); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// MarkRead records the principal's last-read message. The upsert is blind;
// moving the pointer backwards is tolerated.
func (s *Chat) MarkRead(ctx context.Context, conversationID uuid.UUID, principal chat.Principal, lastMessageID uuid.UUID) error {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer sc.Rollback(ctx)

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if err := authorize(ctx, sc, conv, principal); err != nil {
		return err
	}
	if err := sc.ReadState().UpsertLastRead(ctx, conversationID, principal.Kind, principal.SubjectID, lastMessageID); err != nil {
		return err
	}
	return sc.Commit(ctx)
}
