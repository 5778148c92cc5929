// Package storetest provides an in-memory store.Store for service and
// dispatcher tests. It applies writes immediately; Commit and Rollback are
// bookkeeping only, which is enough for the behaviors under test.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/cursor"
	"github.com/leafflow/chat-service/internal/store"
)

// Fake is the shared state behind every scope.
type Fake struct {
	mu sync.Mutex

	Conversations map[uuid.UUID]chat.Conversation
	Members       []chat.Participant
	Msgs          []chat.Message
	Reads         map[string]chat.ReadState
	OutboxRows    []chat.OutboxRecord

	nextOutboxID int64
	Commits      int
}

// New creates an empty fake store.
func New() *Fake {
	return &Fake{
		Conversations: make(map[uuid.UUID]chat.Conversation),
		Reads:         make(map[string]chat.ReadState),
		nextOutboxID:  1,
	}
}

func (f *Fake) Begin(ctx context.Context) (store.Scope, error) {
	return &scope{f: f}, nil
}

// OutboxByStatus returns the records currently in the given status.
func (f *Fake) OutboxByStatus(status string) []chat.OutboxRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chat.OutboxRecord
	for _, rec := range f.OutboxRows {
		if rec.Status == status {
			out = append(out, rec)
		}
	}
	return out
}

// SeedConversation inserts a conversation with a single user participant.
func (f *Fake) SeedConversation(c chat.Conversation, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Conversations[c.ID] = c
	f.Members = append(f.Members, chat.Participant{
		ConversationID: c.ID,
		Kind:           chat.KindUser,
		SubjectID:      userID,
		JoinedAt:       c.CreatedAt,
	})
}

// SeedOutbox appends a record directly, bypassing the Add path.
func (f *Fake) SeedOutbox(rec chat.OutboxRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = f.nextOutboxID
		f.nextOutboxID++
	} else if rec.ID >= f.nextOutboxID {
		f.nextOutboxID = rec.ID + 1
	}
	f.OutboxRows = append(f.OutboxRows, rec)
}

type scope struct {
	f *Fake
}

func (s *scope) Conversations() store.ConversationRepo { return convRepo{s.f} }
func (s *scope) Participants() store.ParticipantRepo   { return partRepo{s.f} }
func (s *scope) Messages() store.MessageRepo           { return msgRepo{s.f} }
func (s *scope) ReadState() store.ReadStateRepo        { return readRepo{s.f} }
func (s *scope) Outbox() store.OutboxRepo              { return outboxRepo{s.f} }

func (s *scope) Commit(ctx context.Context) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	s.f.Commits++
	return nil
}

func (s *scope) Rollback(ctx context.Context) error { return nil }

type convRepo struct{ f *Fake }

func (r convRepo) GetByID(ctx context.Context, id uuid.UUID) (chat.Conversation, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c, ok := r.f.Conversations[id]
	if !ok {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return c, nil
}

func (r convRepo) GetSupportForUser(ctx context.Context, userID int64) (chat.Conversation, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, c := range r.f.Conversations {
		if c.TopicType != "support" || c.Status != chat.ConversationOpen {
			continue
		}
		for _, m := range r.f.Members {
			if m.ConversationID == c.ID && m.Kind == chat.KindUser && m.SubjectID == userID {
				return c, nil
			}
		}
	}
	return chat.Conversation{}, chat.ErrNotFound
}

func (r convRepo) GetByTopic(ctx context.Context, topicType string, topicID int64, status chat.ConversationStatus) (chat.Conversation, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var best *chat.Conversation
	for _, c := range r.f.Conversations {
		if c.TopicType != topicType || c.TopicID == nil || *c.TopicID != topicID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		c := c
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = &c
		}
	}
	if best == nil {
		return chat.Conversation{}, chat.ErrNotFound
	}
	return *best, nil
}

func (r convRepo) ListForUser(ctx context.Context, userID int64, cur string, limit int) ([]chat.Conversation, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []chat.Conversation
	for _, c := range r.f.Conversations {
		for _, m := range r.f.Members {
			if m.ConversationID == c.ID && m.Kind == chat.KindUser && m.SubjectID == userID {
				out = append(out, c)
				break
			}
		}
	}
	return pageConversations(out, cur, limit), nil
}

func (r convRepo) ListForAdmin(ctx context.Context, f store.ConversationFilter) ([]chat.Conversation, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []chat.Conversation
	for _, c := range r.f.Conversations {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.AssigneeAdminID != nil {
			if c.AssigneeAdminID == nil || *c.AssigneeAdminID != *f.AssigneeAdminID {
				continue
			}
		}
		out = append(out, c)
	}
	return pageConversations(out, f.Cursor, f.Limit), nil
}

// pageConversations mirrors the SQL ordering: last_message_at DESC with
// NULLs last, id ASC as the tiebreak, cursor strictly before.
func pageConversations(items []chat.Conversation, cur string, limit int) []chat.Conversation {
	key := func(c chat.Conversation) time.Time {
		if c.LastMessageAt == nil {
			return time.Unix(0, 0).UTC()
		}
		return *c.LastMessageAt
	}
	sort.Slice(items, func(i, j int) bool {
		ti, tj := key(items[i]), key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	if c, ok := cursor.Decode(cur); ok {
		var after []chat.Conversation
		for _, item := range items {
			t := key(item)
			if t.Before(c.TS) || (t.Equal(c.TS) && item.ID.String() > c.ID.String()) {
				after = append(after, item)
			}
		}
		items = after
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func (r convRepo) Create(ctx context.Context, c chat.Conversation) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	r.f.Conversations[c.ID] = c
	return nil
}

func (r convRepo) Assign(ctx context.Context, id uuid.UUID, adminID int64) error {
	return r.update(id, func(c *chat.Conversation) {
		c.AssigneeAdminID = &adminID
	})
}

func (r convRepo) Close(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(c *chat.Conversation) {
		c.Status = chat.ConversationClosed
	})
}

func (r convRepo) TouchLastMessageAt(ctx context.Context, id uuid.UUID, ts time.Time) error {
	return r.update(id, func(c *chat.Conversation) {
		c.LastMessageAt = &ts
	})
}

func (r convRepo) update(id uuid.UUID, fn func(*chat.Conversation)) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	c, ok := r.f.Conversations[id]
	if !ok {
		return chat.ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	r.f.Conversations[id] = c
	return nil
}

type partRepo struct{ f *Fake }

func (r partRepo) IsParticipant(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64) (bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, m := range r.f.Members {
		if m.ConversationID == conversationID && m.Kind == kind && m.SubjectID == subjectID {
			return true, nil
		}
	}
	return false, nil
}

func (r partRepo) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]chat.Participant, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []chat.Participant
	for _, m := range r.f.Members {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r partRepo) Add(ctx context.Context, p chat.Participant) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, m := range r.f.Members {
		if m.ConversationID == p.ConversationID && m.Kind == p.Kind && m.SubjectID == p.SubjectID {
			return chat.ErrConflict
		}
	}
	r.f.Members = append(r.f.Members, p)
	return nil
}

type msgRepo struct{ f *Fake }

func (r msgRepo) ListMessages(ctx context.Context, conversationID uuid.UUID, cur string, limit int) ([]chat.Message, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	var out []chat.Message
	for _, m := range r.f.Msgs {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if c, ok := cursor.Decode(cur); ok {
		var after []chat.Message
		for _, m := range out {
			if m.CreatedAt.After(c.TS) || (m.CreatedAt.Equal(c.TS) && m.ID.String() > c.ID.String()) {
				after = append(after, m)
			}
		}
		out = after
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r msgRepo) CreateIfNotExists(ctx context.Context, m chat.Message) (chat.Message, bool, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, existing := range r.f.Msgs {
		if existing.ConversationID == m.ConversationID &&
			existing.SenderKind == m.SenderKind &&
			existing.SenderID == m.SenderID &&
			existing.ClientMsgID == m.ClientMsgID {
			return existing, false, nil
		}
	}
	r.f.Msgs = append(r.f.Msgs, m)
	return m, true, nil
}

func (r msgRepo) GetByClientMsgID(ctx context.Context, conversationID uuid.UUID, senderKind chat.ParticipantKind, senderID int64, clientMsgID uuid.UUID) (chat.Message, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for _, m := range r.f.Msgs {
		if m.ConversationID == conversationID && m.SenderKind == senderKind &&
			m.SenderID == senderID && m.ClientMsgID == clientMsgID {
			return m, nil
		}
	}
	return chat.Message{}, chat.ErrNotFound
}

type readRepo struct{ f *Fake }

func (r readRepo) UpsertLastRead(ctx context.Context, conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64, lastMessageID uuid.UUID) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	k := readKey(conversationID, kind, subjectID)
	id := lastMessageID
	r.f.Reads[k] = chat.ReadState{
		ConversationID:    conversationID,
		Kind:              kind,
		SubjectID:         subjectID,
		LastReadMessageID: &id,
		UpdatedAt:         time.Now().UTC(),
	}
	return nil
}

func readKey(conversationID uuid.UUID, kind chat.ParticipantKind, subjectID int64) string {
	return fmt.Sprintf("%s|%s|%d", conversationID, kind, subjectID)
}

type outboxRepo struct{ f *Fake }

func (r outboxRepo) Add(ctx context.Context, eventType string, payload map[string]any) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	now := time.Now().UTC()
	r.f.OutboxRows = append(r.f.OutboxRows, chat.OutboxRecord{
		ID:        r.f.nextOutboxID,
		EventType: eventType,
		Payload:   payload,
		Status:    chat.OutboxPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	r.f.nextOutboxID++
	return nil
}

func (r outboxRepo) FetchPending(ctx context.Context, batchSize int) ([]chat.OutboxRecord, error) {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	now := time.Now().UTC()
	var claimed []chat.OutboxRecord
	for i := range r.f.OutboxRows {
		rec := &r.f.OutboxRows[i]
		if rec.Status != chat.OutboxPending && rec.Status != chat.OutboxFailed {
			continue
		}
		if rec.NextRetryAt != nil && rec.NextRetryAt.After(now) {
			continue
		}
		rec.Status = chat.OutboxProcessing
		rec.UpdatedAt = now
		claimed = append(claimed, *rec)
		if batchSize > 0 && len(claimed) >= batchSize {
			break
		}
	}
	return claimed, nil
}

func (r outboxRepo) MarkSent(ctx context.Context, ids []int64) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for i := range r.f.OutboxRows {
		for _, id := range ids {
			if r.f.OutboxRows[i].ID == id {
				r.f.OutboxRows[i].Status = chat.OutboxSent
				r.f.OutboxRows[i].UpdatedAt = time.Now().UTC()
			}
		}
	}
	return nil
}

func (r outboxRepo) MarkFailed(ctx context.Context, id int64, nextRetryAt time.Time) error {
	r.f.mu.Lock()
	defer r.f.mu.Unlock()
	for i := range r.f.OutboxRows {
		if r.f.OutboxRows[i].ID == id {
			r.f.OutboxRows[i].Status = chat.OutboxFailed
			r.f.OutboxRows[i].Attempts++
			t := nextRetryAt
			r.f.OutboxRows[i].NextRetryAt = &t
			r.f.OutboxRows[i].UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}
