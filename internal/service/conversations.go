package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/store"
)

// OpenSupportConversation returns the user's open support conversation,
// creating one (plus the user participant row and a conversation_created
// outbox record) if none exists. created reports whether a new
// conversation was made.
func (s *Chat) OpenSupportConversation(ctx context.Context, userID int64) (chat.Conversation, bool, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	defer sc.Rollback(ctx)

	existing, err := sc.Conversations().GetSupportForUser(ctx, userID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return chat.Conversation{}, false, err
	}

	conv, err := s.createConversation(ctx, sc, "support", nil, userID)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	return conv, true, nil
}

// OpenTopicConversation is the topic-keyed variant: at most one open
// conversation per (topic_type, topic_id).
func (s *Chat) OpenTopicConversation(ctx context.Context, topicType string, topicID int64, userID int64) (chat.Conversation, bool, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	defer sc.Rollback(ctx)

	existing, err := sc.Conversations().GetByTopic(ctx, topicType, topicID, chat.ConversationOpen)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, chat.ErrNotFound) {
		return chat.Conversation{}, false, err
	}

	conv, err := s.createConversation(ctx, sc, topicType, &topicID, userID)
	if err != nil {
		return chat.Conversation{}, false, err
	}
	return conv, true, nil
}

// GetTopicConversation looks up the open conversation for a topic without
// side effects. The ingress consumer uses it for order status updates.
func (s *Chat) GetTopicConversation(ctx context.Context, topicType string, topicID int64) (chat.Conversation, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return chat.Conversation{}, err
	}
	defer sc.Rollback(ctx)
	return sc.Conversations().GetByTopic(ctx, topicType, topicID, chat.ConversationOpen)
}

// createConversation writes the conversation, its user participant and the
// outbox record, then commits the scope.
func (s *Chat) createConversation(ctx context.Context, sc store.Scope, topicType string, topicID *int64, userID int64) (chat.Conversation, error) {
	now := s.now().UTC()
	conv := chat.Conversation{
		ID:        uuid.New(),
		TopicType: topicType,
		TopicID:   topicID,
		Status:    chat.ConversationOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := sc.Conversations().Create(ctx, conv); err != nil {
		return chat.Conversation{}, err
	}

	if err := sc.Participants().Add(ctx, chat.Participant{
		ConversationID: conv.ID,
		Kind:           chat.KindUser,
		SubjectID:      userID,
		JoinedAt:       now,
	}); err != nil {
		return chat.Conversation{}, err
	}

	payload := map[string]any{
		"conversation_id": conv.ID.String(),
		"user_id":         userID,
		"topic_type":      topicType,
	}
	if topicID != nil {
		payload["topic_id"] = *topicID
	}
	if err := sc.Outbox().Add(ctx, EventConversationCreated, payload); err != nil {
		return chat.Conversation{}, err
	}
	if err := sc.Commit(ctx); err != nil {
		return chat.Conversation{}, err
	}
	return conv, nil
}

// ListConversationsForUser pages the caller's conversations, most recent
// activity first.
func (s *Chat) ListConversationsForUser(ctx context.Context, userID int64, cursor string, limit int) ([]chat.Conversation, error) {
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Rollback(ctx)
	return sc.Conversations().ListForUser(ctx, userID, cursor, limit)
}

// ListConversationsForAdmin pages all conversations with optional status
// and assignee filters. Admin only.
func (s *Chat) ListConversationsForAdmin(ctx context.Context, caller chat.Principal, f store.ConversationFilter) ([]chat.Conversation, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("admin access required: %w", chat.ErrForbidden)
	}
	sc, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer sc.Rollback(ctx)
	return sc.Conversations().ListForAdmin(ctx, f)
}
