package ws

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Bridge routes bus events into the local session registry. Events with no
// parseable conversation_id are dropped here; they remain journaled in the
// outbox for everything that is not live fan-out.
type Bridge struct {
	registry *Registry
}

func NewBridge(registry *Registry) *Bridge {
	return &Bridge{registry: registry}
}

// HandleEvent is the bus subscriber callback.
func (b *Bridge) HandleEvent(eventType string, data map[string]any) {
	raw, _ := data["conversation_id"].(string)
	if raw == "" {
		log.Debug().Str("event", eventType).Msg("bus event without conversation_id, dropped")
		return
	}
	conversationID, err := uuid.Parse(raw)
	if err != nil {
		log.Debug().Str("event", eventType).Str("conversation_id", raw).Msg("bus event with bad conversation_id, dropped")
		return
	}
	b.registry.BroadcastToConversation(conversationID, eventType, data)
}
