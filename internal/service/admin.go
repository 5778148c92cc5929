package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/store"
)

// AssignConversation sets the assignee, makes sure the admin is a
// participant, and drops a system message into the thread. Admin only.
func (s *Chat) AssignConversation(ctx context.Context, conversationID uuid.UUID, adminID int64, caller chat.Principal) (chat.Conversation, error) {
	if !caller.IsAdmin() {
		return chat.Conversation{}, fmt.Errorf("admin access required: %w", chat.ErrForbidden)
	}

	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer sc.Rollback(ctx)

	if _, err := sc.Conversations().GetByID(ctx, conversationID); err != nil {
		return chat.Conversation{}, err
	}
	if err := sc.Conversations().Assign(ctx, conversationID, adminID); err != nil {
		return chat.Conversation{}, err
	}

	member, err := sc.Participants().IsParticipant(ctx, conversationID, chat.KindAdmin, adminID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if !member {
		if err := sc.Participants().Add(ctx, chat.Participant{
			ConversationID: conversationID,
			Kind:           chat.KindAdmin,
			SubjectID:      adminID,
			JoinedAt:       s.now().UTC(),
		}); err != nil {
			return chat.Conversation{}, err
		}
	}

	body := fmt.Sprintf("Admin %d assigned to conversation", adminID)
	if err := s.insertSystemMessage(ctx, sc, conversationID, adminID, body, map[string]any{
		"action":   "assigned",
		"admin_id": adminID,
	}); err != nil {
		return chat.Conversation{}, err
	}

	if err := sc.Outbox().Add(ctx, EventConversationUpdated, map[string]any{
		"conversation_id":   conversationID.String(),
		"action":            "assigned",
		"assignee_admin_id": adminID,
	}); err != nil {
		return chat.Conversation{}, err
	}

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if err := sc.Commit(ctx); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// CloseConversation transitions the conversation to closed and records a
// system message. Reopening is not modeled. Admin only.
func (s *Chat) CloseConversation(ctx context.Context, conversationID uuid.UUID, caller chat.Principal) (chat.Conversation, error) {
	if !caller.IsAdmin() {
		return chat.Conversation{}, fmt.Errorf("admin access required: %w", chat.ErrForbidden)
	}

	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer sc.Rollback(ctx)

	if _, err := sc.Conversations().GetByID(ctx, conversationID); err != nil {
		return chat.Conversation{}, err
	}
	if err := sc.Conversations().Close(ctx, conversationID); err != nil {
		return chat.Conversation{}, err
	}

	if err := s.insertSystemMessage(ctx, sc, conversationID, caller.SubjectID, "Conversation closed", map[string]any{
		"action": "closed",
	}); err != nil {
		return chat.Conversation{}, err
	}

	if err := sc.Outbox().Add(ctx, EventConversationUpdated, map[string]any{
		"conversation_id": conversationID.String(),
		"action":          "closed",
		"status":          string(chat.ConversationClosed),
	}); err != nil {
		return chat.Conversation{}, err
	}

	conv, err := sc.Conversations().GetByID(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, err
	}
	if err := sc.Commit(ctx); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// insertSystemMessage writes the system message and touches
// last_message_at so the conversation sorts to the top of listings.
func (s *Chat) insertSystemMessage(ctx context.Context, sc store.Scope, conversationID uuid.UUID, senderID int64, body string, payload map[string]any) error {
	now := s.now().UTC()
	msg := chat.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderKind:     chat.KindAdmin,
		SenderID:       senderID,
		Type:           chat.MessageSystem,
		Body:           &body,
		Payload:        payload,
		ClientMsgID:    uuid.New(),
		CreatedAt:      now,
	}
	if _, _, err := sc.Messages().CreateIfNotExists(ctx, msg); err != nil {
		return err
	}
	return sc.Conversations().TouchLastMessageAt(ctx, conversationID, now)
}
