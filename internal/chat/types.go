// Package chat defines the domain model for the support chat service:
// conversations, participants, messages, read state and the outbox journal.
package chat

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConversationStatus is the lifecycle state of a conversation.
// Transitions are one-way: open -> closed.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// ParticipantKind distinguishes the two caller populations.
type ParticipantKind string

const (
	KindUser  ParticipantKind = "user"
	KindAdmin ParticipantKind = "admin"
)

// MessageType classifies message content.
type MessageType string

const (
	MessageText       MessageType = "text"
	MessageSystem     MessageType = "system"
	MessageAttachment MessageType = "attachment"
)

// ParseMessageType validates a client-supplied message type.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(s) {
	case MessageText, MessageSystem, MessageAttachment:
		return MessageType(s), nil
	}
	return "", fmt.Errorf("%w: unknown message type %q", ErrValidation, s)
}

// Conversation is a thread between a user and zero or more admins,
// typed by TopicType ("support", "order", ...).
type Conversation struct {
	ID              uuid.UUID
	TopicType       string
	TopicID         *int64
	Status          ConversationStatus
	AssigneeAdminID *int64
	LastMessageAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Participant is a membership record granting access to a conversation.
// The (ConversationID, Kind, SubjectID) triple is unique.
type Participant struct {
	ConversationID uuid.UUID
	Kind           ParticipantKind
	SubjectID      int64
	JoinedAt       time.Time
}

// Message is an append-only chat message. The idempotency key is
// (ConversationID, SenderKind, SenderID, ClientMsgID).
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderKind     ParticipantKind
	SenderID       int64
	Type           MessageType
	Body           *string
	Payload        map[string]any
	ClientMsgID    uuid.UUID
	CreatedAt      time.Time
}

// ReadState tracks the last message a member has read in a conversation.
// The store does not enforce forward-only movement; callers may regress it.
type ReadState struct {
	ConversationID    uuid.UUID
	Kind              ParticipantKind
	SubjectID         int64
	LastReadMessageID *uuid.UUID
	UpdatedAt         time.Time
}

// Outbox record statuses. A record leaves pending/failed only under a
// row lock held by a single dispatcher.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxSent       = "sent"
	OutboxFailed     = "failed"
)

// OutboxRecord is one journaled event awaiting publication on the bus.
type OutboxRecord struct {
	ID          int64
	EventType   string
	Payload     map[string]any
	Status      string
	Attempts    int
	NextRetryAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Principal is the authenticated caller identity extracted from a bearer token.
type Principal struct {
	Kind      ParticipantKind
	SubjectID int64
	Roles     []string
}

// IsAdmin reports whether the principal has global admin access.
func (p Principal) IsAdmin() bool {
	if p.Kind == KindAdmin {
		return true
	}
	for _, r := range p.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// Key is the unique registry key for live socket bookkeeping.
func (p Principal) Key() string {
	return fmt.Sprintf("%s:%d", p.Kind, p.SubjectID)
}

// SystemPrincipal is the synthetic sender used for automated system messages
// triggered by external domain events.
var SystemPrincipal = Principal{Kind: KindAdmin, SubjectID: 0, Roles: []string{"admin"}}
