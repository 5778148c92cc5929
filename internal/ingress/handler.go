// Package ingress translates external LeafFlow domain events from the
// leaf.events stream into calls on the chat write path.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/service"
)

// Handler dispatches one stream entry. Errors bubble up unacknowledged so
// the broker redelivers.
type Handler struct {
	chat *service.Chat
}

func NewHandler(svc *service.Chat) *Handler {
	return &Handler{chat: svc}
}

// HandleEvent is the stream consumer callback.
func (h *Handler) HandleEvent(ctx context.Context, eventType string, fields map[string]string) error {
	switch eventType {
	case "order.created":
		return h.handleOrderCreated(ctx, fields)
	case "order.status_changed":
		return h.handleOrderStatusChanged(ctx, fields)
	case "user.blocked":
		// Reserved: send_message should start rejecting blocked users.
		log.Info().Str("user_id", fields["user_id"]).Msg("user blocked")
		return nil
	case "user.updated":
		log.Debug().Str("user_id", fields["user_id"]).Msg("user updated")
		return nil
	default:
		log.Debug().Str("event", eventType).Msg("ignoring unknown leaf event")
		return nil
	}
}

func (h *Handler) handleOrderCreated(ctx context.Context, fields map[string]string) error {
	userID, err := intField(fields, "user_id")
	if err != nil {
		return err
	}
	orderID, err := intField(fields, "order_id")
	if err != nil {
		return err
	}

	conv, created, err := h.chat.OpenTopicConversation(ctx, "order", orderID, userID)
	if err != nil {
		return err
	}
	if created {
		log.Info().
			Str("conversation_id", conv.ID.String()).
			Int64("order_id", orderID).
			Int64("user_id", userID).
			Msg("conversation created for order")
	}
	return nil
}

// Localised status labels shown to customers inside the order thread.
var orderStatusLabels = map[string]string{
	"confirmed":  "Заказ подтверждён",
	"processing": "Заказ в обработке",
	"shipped":    "Заказ отправлен",
	"delivered":  "Заказ доставлен",
	"completed":  "Заказ завершён",
	"cancelled":  "Заказ отменён",
	"refunded":   "Возврат оформлен",
}

func (h *Handler) handleOrderStatusChanged(ctx context.Context, fields map[string]string) error {
	orderID, err := intField(fields, "order_id")
	if err != nil {
		return err
	}
	status := fields["status"]
	if status == "" {
		return fmt.Errorf("%w: order.status_changed missing status", chat.ErrValidation)
	}

	conv, err := h.chat.GetTopicConversation(ctx, "order", orderID)
	if errors.Is(err, chat.ErrNotFound) {
		log.Warn().Int64("order_id", orderID).Str("status", status).Msg("no conversation for order status change")
		return nil
	}
	if err != nil {
		return err
	}

	label, ok := orderStatusLabels[status]
	if !ok {
		label = fmt.Sprintf("Статус заказа: %s", status)
	}
	body := fmt.Sprintf("%s (#%d)", label, orderID)

	_, _, err = h.chat.SendMessage(ctx, conv.ID, chat.SystemPrincipal, uuid.New(), chat.MessageSystem, &body)
	if err != nil {
		return err
	}

	log.Info().
		Int64("order_id", orderID).
		Str("status", status).
		Str("conversation_id", conv.ID.String()).
		Msg("order status notified")
	return nil
}

func intField(fields map[string]string, key string) (int64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", chat.ErrValidation, key)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad %s %q", chat.ErrValidation, key, raw)
	}
	return n, nil
}
