package httpapi

import (
	"time"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/cursor"
)

type conversationJSON struct {
	ID              string     `json:"id"`
	TopicType       string     `json:"topic_type"`
	TopicID         *int64     `json:"topic_id,omitempty"`
	Status          string     `json:"status"`
	AssigneeAdminID *int64     `json:"assignee_admin_id,omitempty"`
	LastMessageAt   *time.Time `json:"last_message_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toConversationJSON(c chat.Conversation) conversationJSON {
	return conversationJSON{
		ID:              c.ID.String(),
		TopicType:       c.TopicType,
		TopicID:         c.TopicID,
		Status:          string(c.Status),
		AssigneeAdminID: c.AssigneeAdminID,
		LastMessageAt:   c.LastMessageAt,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

type messageJSON struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	SenderKind     string         `json:"sender_kind"`
	SenderID       int64          `json:"sender_id"`
	Type           string         `json:"type"`
	Body           *string        `json:"body,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	ClientMsgID    string         `json:"client_msg_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toMessageJSON(m chat.Message) messageJSON {
	return messageJSON{
		ID:             m.ID.String(),
		ConversationID: m.ConversationID.String(),
		SenderKind:     string(m.SenderKind),
		SenderID:       m.SenderID,
		Type:           string(m.Type),
		Body:           m.Body,
		Payload:        m.Payload,
		ClientMsgID:    m.ClientMsgID.String(),
		CreatedAt:      m.CreatedAt,
	}
}

type messagePage struct {
	Items      []messageJSON `json:"items"`
	NextCursor *string       `json:"next_cursor,omitempty"`
}

func toMessagePage(items []chat.Message) messagePage {
	page := messagePage{Items: make([]messageJSON, 0, len(items))}
	for _, m := range items {
		page.Items = append(page.Items, toMessageJSON(m))
	}
	if len(items) > 0 {
		last := items[len(items)-1]
		c := cursor.Encode(last.CreatedAt, last.ID)
		page.NextCursor = &c
	}
	return page
}

type conversationPage struct {
	Items      []conversationJSON `json:"items"`
	NextCursor *string            `json:"next_cursor,omitempty"`
}

func toConversationPage(items []chat.Conversation) conversationPage {
	page := conversationPage{Items: make([]conversationJSON, 0, len(items))}
	for _, c := range items {
		page.Items = append(page.Items, toConversationJSON(c))
	}
	if len(items) > 0 {
		last := items[len(items)-1]
		var ts time.Time
		if last.LastMessageAt != nil {
			ts = *last.LastMessageAt
		}
		c := cursor.Encode(ts, last.ID)
		page.NextCursor = &c
	}
	return page
}
