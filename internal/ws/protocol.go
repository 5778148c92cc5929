// Package ws holds the live-session side of the delivery fabric: the
// per-process session registry, the socket protocol, and the bridge that
// feeds bus events into local sessions.
package ws

import "encoding/json"

// Inbound frame types (client -> server).
const (
	FramePing        = "ping"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameMessageSend = "message.send"
	FrameMarkRead    = "mark_read"
)

// Outbound frame types (server -> client).
const (
	FramePong                = "pong"
	FrameError               = "error"
	FrameMessageCreated      = "message.created"
	FrameConversationUpdated = "conversation.updated"
)

// Inbound is a client frame. Data stays raw until the type is known.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Outbound is a server frame: {"type": <event>, "data": <data>}.
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func errorFrame(code string, detail string) Outbound {
	data := map[string]any{"code": code}
	if detail != "" {
		data["detail"] = detail
	}
	return Outbound{Type: FrameError, Data: data}
}
