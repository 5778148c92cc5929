package ingress

import (
	"context"
	"errors"
	"testing"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/service"
	"github.com/leafflow/chat-service/internal/store/storetest"
)

func TestOrderCreatedOpensConversation(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	err := h.HandleEvent(context.Background(), "order.created", map[string]string{
		"order_id": "1001",
		"user_id":  "7",
	})
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	if len(f.Conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(f.Conversations))
	}
	for _, c := range f.Conversations {
		if c.TopicType != "order" || c.TopicID == nil || *c.TopicID != 1001 {
			t.Errorf("conversation = %+v", c)
		}
	}

	// Replay is harmless: the open conversation is reused.
	err = h.HandleEvent(context.Background(), "order.created", map[string]string{
		"order_id": "1001",
		"user_id":  "7",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(f.Conversations) != 1 {
		t.Errorf("replay created a second conversation")
	}
}

func TestOrderStatusChangedPostsSystemMessage(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	if err := h.HandleEvent(context.Background(), "order.created", map[string]string{
		"order_id": "1001",
		"user_id":  "7",
	}); err != nil {
		t.Fatalf("order.created: %v", err)
	}

	if err := h.HandleEvent(context.Background(), "order.status_changed", map[string]string{
		"order_id": "1001",
		"status":   "shipped",
	}); err != nil {
		t.Fatalf("order.status_changed: %v", err)
	}

	if len(f.Msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(f.Msgs))
	}
	msg := f.Msgs[0]
	if msg.Type != chat.MessageSystem {
		t.Errorf("type = %q, want system", msg.Type)
	}
	if msg.Body == nil || *msg.Body != "Заказ отправлен (#1001)" {
		t.Errorf("body = %v", msg.Body)
	}
}

func TestOrderStatusChangedUnknownStatusLabel(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	if err := h.HandleEvent(context.Background(), "order.created", map[string]string{
		"order_id": "5", "user_id": "7",
	}); err != nil {
		t.Fatalf("order.created: %v", err)
	}
	if err := h.HandleEvent(context.Background(), "order.status_changed", map[string]string{
		"order_id": "5", "status": "weird",
	}); err != nil {
		t.Fatalf("order.status_changed: %v", err)
	}

	if len(f.Msgs) != 1 || *f.Msgs[0].Body != "Статус заказа: weird (#5)" {
		t.Errorf("messages = %+v", f.Msgs)
	}
}

func TestOrderStatusChangedWithoutConversation(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	// No conversation for this order: logged and acknowledged, not retried.
	err := h.HandleEvent(context.Background(), "order.status_changed", map[string]string{
		"order_id": "404",
		"status":   "shipped",
	})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}

func TestHandleEventFieldValidation(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	tests := []struct {
		name   string
		event  string
		fields map[string]string
	}{
		{"order.created missing user_id", "order.created", map[string]string{"order_id": "1"}},
		{"order.created bad order_id", "order.created", map[string]string{"order_id": "x", "user_id": "7"}},
		{"status_changed missing status", "order.status_changed", map[string]string{"order_id": "1"}},
		{"status_changed bad order_id", "order.status_changed", map[string]string{"order_id": "x", "status": "shipped"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.HandleEvent(context.Background(), tt.event, tt.fields)
			if !errors.Is(err, chat.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}

func TestUnknownEventsAcknowledged(t *testing.T) {
	f := storetest.New()
	h := NewHandler(service.New(f))

	for _, event := range []string{"user.blocked", "user.updated", "something.else"} {
		if err := h.HandleEvent(context.Background(), event, map[string]string{"user_id": "7"}); err != nil {
			t.Errorf("HandleEvent(%q) = %v, want nil", event, err)
		}
	}
}
