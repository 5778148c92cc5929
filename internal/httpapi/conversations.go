package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/leafflow/chat-service/internal/chat"
)

// OpenSupportConversation handles POST /v1/conversations/support.
// Idempotent per user: an existing open support thread is returned as-is.
func (s *Server) OpenSupportConversation(w http.ResponseWriter, r *http.Request) {
	p := principal(r)

	conv, created, err := s.Chat.OpenSupportConversation(r.Context(), p.SubjectID)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toConversationJSON(conv))
}

// ListConversations handles GET /v1/conversations?cursor=&limit=.
func (s *Server) ListConversations(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)

	items, err := s.Chat.ListConversationsForUser(r.Context(), p.SubjectID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationPage(items))
}

// GetConversation handles GET /v1/conversations/{id}.
func (s *Server) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	conv, err := s.Chat.GetConversation(r.Context(), id, principal(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toConversationJSON(conv))
}

// ListMessages handles GET /v1/conversations/{id}/messages?cursor=&limit=.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	items, err := s.Chat.ListMessages(r.Context(), id, principal(r), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessagePage(items))
}

type sendMessageReq struct {
	ClientMsgID string  `json:"client_msg_id"`
	Type        string  `json:"type"`
	Body        *string `json:"body"`
}

// SendMessage handles POST /v1/conversations/{id}/messages.
// Returns 201 on a fresh insert, 200 when the client_msg_id was replayed.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sendMessageReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", chat.ErrValidation))
		return
	}
	clientMsgID, err := uuid.Parse(req.ClientMsgID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: bad client_msg_id", chat.ErrValidation))
		return
	}
	if req.Type == "" {
		req.Type = string(chat.MessageText)
	}
	msgType, err := chat.ParseMessageType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, created, err := s.Chat.SendMessage(r.Context(), id, principal(r), clientMsgID, msgType, req.Body)
	if err != nil {
		writeError(w, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, toMessageJSON(msg))
}

type markReadReq struct {
	LastMessageID string `json:"last_message_id"`
}

// MarkRead handles POST /v1/conversations/{id}/read.
func (s *Server) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req markReadReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: invalid json", chat.ErrValidation))
		return
	}
	lastMessageID, err := uuid.Parse(req.LastMessageID)
	if err != nil {
		writeError(w, fmt.Errorf("%w: bad last_message_id", chat.ErrValidation))
		return
	}

	if err := s.Chat.MarkRead(r.Context(), id, principal(r), lastMessageID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
