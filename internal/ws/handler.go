package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/leafflow/chat-service/internal/auth"
	"github.com/leafflow/chat-service/internal/chat"
	"github.com/leafflow/chat-service/internal/service"
)

const (
	closeAuthFailed = 4001

	writeWait      = 10 * time.Second
	maxMessageSize = 65536
)

// Handler upgrades /ws/chat requests and runs the per-socket session.
type Handler struct {
	chat      *service.Chat
	registry  *Registry
	verifier  auth.Verifier
	heartbeat time.Duration
	upgrader  websocket.Upgrader
}

func NewHandler(svc *service.Chat, registry *Registry, verifier auth.Verifier, heartbeat time.Duration) *Handler {
	return &Handler{
		chat:      svc,
		registry:  registry,
		verifier:  verifier,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// CORS policy is enforced by the fronting proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to the registry's Conn. gorilla
// allows one concurrent writer, so every write goes through the mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteFrame(f Outbound) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(f)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// ServeHTTP authenticates via the token query parameter, registers the
// socket, and runs the read loop until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	raw.SetReadLimit(maxMessageSize)

	principal, err := h.verifier.Verify(r.URL.Query().Get("token"))
	if err != nil {
		log.Debug().Err(err).Msg("ws auth failed")
		msg := websocket.FormatCloseMessage(closeAuthFailed, "authentication failed")
		_ = raw.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = raw.Close()
		return
	}

	pkey := principal.Key()
	conn := &wsConn{conn: raw}
	h.registry.Connect(conn, pkey)

	stopHeartbeat := make(chan struct{})
	go h.runHeartbeat(conn, stopHeartbeat)

	defer func() {
		close(stopHeartbeat)
		h.registry.Disconnect(conn, pkey)
		_ = conn.Close()
	}()

	h.readLoop(conn, principal)
}

// runHeartbeat emits an unsolicited pong on the configured interval.
// Silent clients are not closed here; transport keepalive handles the dead.
func (h *Handler) runHeartbeat(conn *wsConn, stop <-chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteFrame(Outbound{Type: FramePong, Data: map[string]any{}}); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(conn *wsConn, principal chat.Principal) {
	pkey := principal.Key()
	for {
		_, raw, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Str("principal", pkey).Msg("ws read error")
			}
			return
		}

		var frame Inbound
		if err := json.Unmarshal(raw, &frame); err != nil {
			_ = conn.WriteFrame(errorFrame("invalid_payload", ""))
			continue
		}

		switch frame.Type {
		case FramePing:
			_ = conn.WriteFrame(Outbound{Type: FramePong, Data: map[string]any{}})

		case FrameSubscribe:
			if id, ok := conversationIDFrom(frame.Data); ok {
				h.registry.Subscribe(pkey, id)
			} else {
				_ = conn.WriteFrame(errorFrame("invalid_data", "conversation_id required"))
			}

		case FrameUnsubscribe:
			if id, ok := conversationIDFrom(frame.Data); ok {
				h.registry.Unsubscribe(pkey, id)
			}

		case FrameMessageSend:
			h.handleSend(conn, principal, frame.Data)

		case FrameMarkRead:
			h.handleMarkRead(conn, principal, frame.Data)

		default:
			_ = conn.WriteFrame(errorFrame("unknown_type", frame.Type))
		}
	}
}

func conversationIDFrom(data json.RawMessage) (uuid.UUID, bool) {
	var d struct {
		ConversationID string `json:"conversation_id"`
	}
	if err := json.Unmarshal(data, &d); err != nil || d.ConversationID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(d.ConversationID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// handleSend runs the write path and broadcasts the result to local
// subscribers right away. The outbox fan-out will deliver the same event
// to every instance; clients dedupe by message id.
func (h *Handler) handleSend(conn *wsConn, principal chat.Principal, data json.RawMessage) {
	var d struct {
		ConversationID string  `json:"conversation_id"`
		ClientMsgID    string  `json:"client_msg_id"`
		Type           string  `json:"type"`
		Body           *string `json:"body"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", err.Error()))
		return
	}

	conversationID, err := uuid.Parse(d.ConversationID)
	if err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", "bad conversation_id"))
		return
	}
	clientMsgID, err := uuid.Parse(d.ClientMsgID)
	if err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", "bad client_msg_id"))
		return
	}
	if d.Type == "" {
		d.Type = string(chat.MessageText)
	}
	msgType, err := chat.ParseMessageType(d.Type)
	if err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", "bad message type"))
		return
	}

	msg, _, err := h.chat.SendMessage(context.Background(), conversationID, principal, clientMsgID, msgType, d.Body)
	if err != nil {
		log.Warn().Err(err).Str("principal", principal.Key()).Msg("ws send failed")
		_ = conn.WriteFrame(errorFrame("send_failed", err.Error()))
		return
	}

	h.registry.BroadcastToConversation(conversationID, FrameMessageCreated, map[string]any{
		"conversation_id": msg.ConversationID.String(),
		"message":         messagePayload(msg),
	})
}

func (h *Handler) handleMarkRead(conn *wsConn, principal chat.Principal, data json.RawMessage) {
	var d struct {
		ConversationID string `json:"conversation_id"`
		LastMessageID  string `json:"last_message_id"`
	}
	if err := json.Unmarshal(data, &d); err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", err.Error()))
		return
	}
	conversationID, err := uuid.Parse(d.ConversationID)
	if err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", "bad conversation_id"))
		return
	}
	lastMessageID, err := uuid.Parse(d.LastMessageID)
	if err != nil {
		_ = conn.WriteFrame(errorFrame("invalid_data", "bad last_message_id"))
		return
	}

	if err := h.chat.MarkRead(context.Background(), conversationID, principal, lastMessageID); err != nil {
		log.Warn().Err(err).Str("principal", principal.Key()).Msg("ws mark_read failed")
	}
}

func messagePayload(m chat.Message) map[string]any {
	var body any
	if m.Body != nil {
		body = *m.Body
	}
	return map[string]any{
		"id":              m.ID.String(),
		"conversation_id": m.ConversationID.String(),
		"sender_kind":     string(m.SenderKind),
		"sender_id":       m.SenderID,
		"type":            string(m.Type),
		"body":            body,
		"client_msg_id":   m.ClientMsgID.String(),
		"created_at":      m.CreatedAt.Format(time.RFC3339Nano),
	}
}
